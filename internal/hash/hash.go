// Package hash provides the content digests used by manifests and stores.
package hash

import (
	"crypto/md5"  //nolint:gosec // S3 ETags are MD5 digests.
	"crypto/sha1" //nolint:gosec // git blob IDs are SHA-1.
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// SHA256 returns the hex SHA-256 digest recorded in manifests.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// GitBlobSHA1 returns the object ID git assigns to a blob with this content,
// which is the "sha" the GitHub contents API reports for a file.
func GitBlobSHA1(data []byte) string {
	h := sha1.New() //nolint:gosec
	h.Write([]byte("blob " + strconv.Itoa(len(data)) + "\x00"))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MD5Hex returns the hex MD5 digest, matching single-part S3 ETags.
func MD5Hex(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
