// Package storage provides the object store the pipeline downloads uploaded
// audio from.
//
// FSStore keeps buckets as directories under the configured storage root and
// is the default backend. HTTPStore reads objects from a remote HTTP origin
// laid out as <base>/<bucket>/<key>, retrying transient failures. Both hand
// out HMAC-signed download URLs that the daemon's file route verifies.
package storage
