// Package cache provides named, versioned response stores for the offline
// cache interceptor.
//
// A Storage holds any number of named Stores. Each Store maps a request
// identity (method + URL) to a full stored response. Stores are created on
// first Open and removed only as a whole through Storage.Delete; there is no
// per-entry expiry.
package cache
