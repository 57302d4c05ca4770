package domain

// Feature is a point entity selected from the source dataset.
type Feature struct {
	ID   int64
	Lon  float64
	Lat  float64
	Tags map[string]string
}

// Name returns the feature's name tag, or "" if it has none.
func (f Feature) Name() string {
	return f.Tags["name"]
}

// KeyPrefix namespaces every cache key written by this service.
const KeyPrefix = "geoquery:"
