// Package cdn derives the public URLs content stores serve objects from.
// Every function is deterministic in its inputs.
package cdn

import (
	"net/url"
	"strings"
)

// JSDelivr serves a file from a GitHub repository through jsDelivr.
func JSDelivr(owner, repo, branch, objectPath string) string {
	return "https://cdn.jsdelivr.net/gh/" + owner + "/" + repo + "@" + branch + "/" + EscapePath(objectPath)
}

// GitHubRaw serves a file straight from raw.githubusercontent.com.
func GitHubRaw(owner, repo, branch, objectPath string) string {
	return "https://raw.githubusercontent.com/" + owner + "/" + repo + "/" + branch + "/" + EscapePath(objectPath)
}

// GCS is the public URL of an object in a Cloud Storage bucket.
func GCS(bucket, objectPath string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + EscapePath(objectPath)
}

// S3 is the virtual-hosted URL of an object in an S3 bucket.
func S3(bucket, region, key string) string {
	if region == "" || region == "us-east-1" {
		return "https://" + bucket + ".s3.amazonaws.com/" + EscapePath(key)
	}
	return "https://" + bucket + ".s3." + region + ".amazonaws.com/" + EscapePath(key)
}

// S3PathStyle is the path-style URL used by S3-compatible endpoints.
func S3PathStyle(endpoint, bucket, key string) string {
	return Join(strings.TrimRight(endpoint, "/")+"/"+bucket, key)
}

// Join appends objectPath to a configured public base URL.
func Join(base, objectPath string) string {
	return strings.TrimRight(base, "/") + "/" + EscapePath(objectPath)
}

// EscapePath escapes each segment of a slash-separated path.
func EscapePath(objectPath string) string {
	segments := strings.Split(strings.TrimLeft(objectPath, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
