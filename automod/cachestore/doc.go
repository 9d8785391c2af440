// Short-lived key/value caching, used to avoid repeat calls to the remote content classifier for identical message text.
package cachestore
