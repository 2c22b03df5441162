// Package domain models a World Bank indicator time series and the views the
// dashboard derives from it.
//
// # Data Source
//
// Records come from the World Bank Indicators API v2:
//
//	GET https://api.worldbank.org/v2/country/all/indicator/{code}?format=json&per_page=10000
//
// The response is a two-element JSON array. The first element is pagination
// metadata, the second the list of observations (or null when the indicator
// has no data):
//
//	[
//	  {"page":1,"pages":1,"per_page":"10000","total":17024, ...},
//	  [
//	    {"indicator":{"id":"NE.EXP.GNFS.KD.ZG","value":"Exports of goods and services (annual % growth)"},
//	     "country":{"id":"DE","value":"Germany"},
//	     "countryiso3code":"DEU","date":"2020","value":-9.3, ...}
//	  ]
//	]
//
// # Source Conventions
//
// country: normally an object {"id": <ISO-2>, "value": <name>}, but some
// mirrors and fixtures flatten it to a plain string. Both forms are decoded
// into CountryName at unmarshal time.
//
// value: a JSON number, null when the series has no observation for that
// year, and occasionally a numeric string. Null rows are dropped during
// normalization; strings are parsed as float64.
//
// date: the observation year as a string ("2020"). Years sort lexically.
//
// countryiso3code: ISO 3166-1 alpha-3 code, or a World Bank aggregate code
// (e.g. "EUU", "WLD") that has no polygon and never appears on the map.
//
// # Views
//
// A Snapshot is the in-memory copy of the persisted table. It is built once per
// load and never mutated; the dashboard swaps in a new Snapshot on refresh.
package domain
