package cdn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublicURLs(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		"https://cdn.jsdelivr.net/gh/acme/pages@main/clonedwebs/promo/index.html",
		JSDelivr("acme", "pages", "main", "clonedwebs/promo/index.html"))
	require.Equal(t,
		"https://raw.githubusercontent.com/acme/pages/main/clonedwebs/promo/site.css",
		GitHubRaw("acme", "pages", "main", "/clonedwebs/promo/site.css"))
	require.Equal(t,
		"https://storage.googleapis.com/bucket/clonedwebs/promo/my%20file.png",
		GCS("bucket", "clonedwebs/promo/my file.png"))
	require.Equal(t, "https://b.s3.amazonaws.com/a/b.js", S3("b", "us-east-1", "a/b.js"))
	require.Equal(t, "https://b.s3.eu-west-1.amazonaws.com/a/b.js", S3("b", "eu-west-1", "a/b.js"))
	require.Equal(t, "http://minio:9000/b/a/b.js", S3PathStyle("http://minio:9000/", "b", "a/b.js"))
	require.Equal(t, "https://sites.example.com/promo/index.html", Join("https://sites.example.com/", "promo/index.html"))
}

func TestPublicURLsAreDeterministic(t *testing.T) {
	t.Parallel()

	require.Equal(t, JSDelivr("o", "r", "b", "x/y"), JSDelivr("o", "r", "b", "x/y"))
}
