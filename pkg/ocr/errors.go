package ocr

import "errors"

// ErrImageDecode means the image bytes could not be decoded. Not retried.
var ErrImageDecode = errors.New("image decode failed")

// ErrRemote covers any network, non-2xx or malformed-body failure at the
// remote vision adapter. The orchestrator recovers it by falling back to the
// local pipeline; it is never retried inside the adapter.
var ErrRemote = errors.New("remote recognition failed")

// ErrEngine means the local recognition engine failed to initialize or
// recognize. Fatal for the current request: no further fallback exists.
var ErrEngine = errors.New("recognition engine failed")
