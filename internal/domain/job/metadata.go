package job

// Metadata keys carried alongside the vector.
const (
	MetaTitle    = "title"
	MetaCompany  = "company"
	MetaLocation = "location"
	MetaURL      = "url"
	MetaPostedAt = "posted_at"
	MetaSkills   = "skills"
)

// Field is one metadata entry.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metadata is an ordered list of key/value pairs. Order is insertion order.
type Metadata []Field

// Get returns the value for key.
func (m Metadata) Get(key string) (string, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// with appends key=value when value is non-empty.
func (m Metadata) with(key, value string) Metadata {
	if value == "" {
		return m
	}
	return append(m, Field{Key: key, Value: value})
}
