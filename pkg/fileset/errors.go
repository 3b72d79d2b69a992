package fileset

import "errors"

// ErrManifestCorrupt indicates the manifest could not be decoded: it is not
// gzip data, or a line does not have exactly three tab-separated fields, or
// the size or timestamp field does not parse. It is fatal to index
// construction.
var ErrManifestCorrupt = errors.New("manifest corrupt")
