// Package covid holds the Hong Kong COVID-19 tables and the pure operations on them.
//
// Upstream records arrive as loosely typed JSON nodes (Raw* types). Normalization
// converts case numbers to integers, repairs known date typos, derives numeric
// waiting times, and joins waiting times with the static hospital table. The
// MapFilter type encodes the dashboard controls: a point is "selected" when it
// passes every mask and "faded" otherwise, so the map can render both sets.
package covid
