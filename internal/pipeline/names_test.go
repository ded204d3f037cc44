package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-cloner/internal/cloner"
	"github.com/JakeFAU/site-cloner/internal/hash"
)

func TestNamerAssign(t *testing.T) {
	t.Parallel()

	n := newNamer()
	require.Equal(t, "site.css", n.assign("https://example.com/css/site.css?v=3", cloner.AssetStylesheet, "text/css", false))
	require.Equal(t, "css.css", n.assign("https://fonts.googleapis.com/css?family=Roboto", cloner.AssetStylesheet, "text/css; charset=utf-8", false))
	require.Equal(t, "style.php.css", n.assign("https://example.com/style.php", cloner.AssetStylesheet, "text/css", false))
	require.Equal(t, "Logo.png", n.assign("https://example.com/Logo.PNG", cloner.AssetImage, "image/png", false))
	require.Equal(t, "my_photo_1_.jpg", n.assign("https://example.com/my%20photo(1).jpg", cloner.AssetImage, "image/jpeg", false))

	root := "https://example.com/"
	require.Equal(t, "resource_"+hash.SHA256([]byte(root))[:8]+".png", n.assign(root, cloner.AssetImage, "image/png", false))

	manifest := "https://example.com/manifest.json"
	require.Equal(t, "manifest-"+hash.SHA256([]byte(manifest))[:8]+".json", n.assign(manifest, cloner.AssetOther, "application/json", false))

	upper := "https://cdn.example.com/logo.png"
	require.Equal(t, "logo-"+hash.SHA256([]byte(upper))[:8]+".png", n.assign(upper, cloner.AssetImage, "image/png", false))
}

func TestNamerAssignReencodedTakesNewExtension(t *testing.T) {
	t.Parallel()

	n := newNamer()
	require.Equal(t, "hero.jpg", n.assign("https://example.com/img/hero.webp", cloner.AssetImage, "image/jpeg", true))
	require.Equal(t, "banner.png", n.assign("https://example.com/img/banner.gif", cloner.AssetImage, "image/png", true))
	require.Equal(t, "photo.jpeg", n.assign("https://example.com/img/photo.jpeg", cloner.AssetImage, "image/jpeg", true))
	require.Equal(t, "logo.png", n.assign("https://example.com/img/logo.png", cloner.AssetImage, "image/png", true))
	require.Equal(t, "raw.webp", n.assign("https://example.com/img/raw.webp", cloner.AssetImage, "image/jpeg", false))
}
