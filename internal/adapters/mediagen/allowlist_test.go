package mediagen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHostAllowlistMatchesETLDPlusOne(t *testing.T) {
	allowlist := NewHostAllowlist([]string{"storage.example.com", "Media-CDN.net"})

	tests := map[string]bool{
		"https://storage.example.com/a.png":        true,
		"https://deep.sub.storage.example.com/a":   true,
		"https://example.com/a.png":                true,
		"https://media-cdn.net/x.mp4":              true,
		"https://eu1.media-cdn.net/x.mp4":          true,
		"https://other.example.org/a.png":          false,
		"https://storage-example.com.evil.io/a":    false,
		"project-assets/u_1/p_2/j_3/narration.mp3": true,
	}

	for artifactURL, wantOK := range tests {
		err := allowlist.Check(artifactURL)
		if wantOK {
			assert.NoError(t, err, "url %s", artifactURL)
		} else {
			assert.Error(t, err, "url %s", artifactURL)
		}
	}
}

func TestHostAllowlistEmptyDisablesValidation(t *testing.T) {
	allowlist := NewHostAllowlist(nil)
	assert.NoError(t, allowlist.Check("https://anything.example/a.png"))

	var nilAllowlist *HostAllowlist
	assert.NoError(t, nilAllowlist.Check("https://anything.example/a.png"))
}

func TestHostAllowlistCheckAll(t *testing.T) {
	allowlist := NewHostAllowlist([]string{"example.com"})

	assert.NoError(t, allowlist.CheckAll([]string{
		"https://a.example.com/1.png",
		"local/2.png",
	}))
	assert.Error(t, allowlist.CheckAll([]string{
		"https://a.example.com/1.png",
		"https://b.example.org/2.png",
	}))
}
