package fetch

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"strings"
)

// RequestKey digests (method, url, body) into the stable key used by
// the replay fixture store and the detail cache. MD5 is deliberate:
// this is a cache key at hobby-crawler scale, not a security boundary.
func RequestKey(method, rawurl string, body []byte) string {
	h := md5.New()
	io.WriteString(h, strings.ToUpper(strings.TrimSpace(method)))
	h.Write([]byte{0})
	io.WriteString(h, rawurl)
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
