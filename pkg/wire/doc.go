// Package wire defines the sample type shared by the agent and the collector
// and the JSON request body exchanged on POST /locations.
//
// A batch body carries three parallel, comma-joined lists plus device
// metadata:
//
//	{
//	  "latitudes":  "61.4981,61.4983,",
//	  "longitudes": "23.7610,23.7612,",
//	  "timestamps": "1700000000.5,1700000001.5,",
//	  "device_id":  "a1b2c3",
//	  "battery":    87
//	}
//
// Every list entry is followed by a comma, so a list of n entries contains
// exactly n commas. Decimals use the shortest representation that parses
// back to the same float64. battery is omitted unless it lies in 0..100.
//
// Encode never substitutes values: a non-finite or out-of-range sample is
// reported as an *EncodingError. Decode is the inverse of Encode.
package wire
