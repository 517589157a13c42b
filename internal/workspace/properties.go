package workspace

import "maps"

// SetProperty sets a workspace property. An empty value deletes it.
// Property changes advance the revision but are not journaled.
func (w *Workspace) SetProperty(key, value string) {
	w.setProperty(key, value)
	w.propertiesRevision = w.clock.Next()
}

func (w *Workspace) setProperty(key, value string) {
	if value == "" {
		delete(w.properties, key)
		return
	}
	w.properties[key] = value
}

// SetProperties applies every pair in props under a single revision.
func (w *Workspace) SetProperties(props map[string]string) {
	if len(props) == 0 {
		return
	}
	for k, v := range props {
		w.setProperty(k, v)
	}
	w.propertiesRevision = w.clock.Next()
}

// Property returns a single property.
func (w *Workspace) Property(key string) (string, bool) {
	v, ok := w.properties[key]
	return v, ok
}

// Properties returns the requested properties, or all of them when keys is nil.
// Keys that are not set are omitted.
func (w *Workspace) Properties(keys []string) map[string]string {
	if keys == nil {
		return maps.Clone(w.properties)
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := w.properties[k]; ok {
			out[k] = v
		}
	}
	return out
}

// ClearProperties removes every property.
func (w *Workspace) ClearProperties() {
	clear(w.properties)
	w.propertiesRevision = w.clock.Next()
}
