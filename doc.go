// Package lake turns the raw song catalog and user activity log into a star
// schema: the songs, artists, users and time dimensions, and the songplays
// fact table.
//
// A run is a batch job over a snapshot of input. It has a handful of stages,
// each with an interface in this package and one or more implementations in
// sub-packages.
//
// 1. RawSource and Source
//
//    A RawSource hands out one reader per file (or S3 object) in a logical
//    location, in a stable order. The file and aws/s3 packages implement it.
//    A Source turns those readers into one decoded JSON object at a time; the
//    json package implements it. Malformed records are reported as
//    *RecordParseError and skipped - they never abort a read.
//
// 2. Parsing
//
//    ParseSong and ParseLogEvent decode the generic objects from a Source
//    into SongRecord and LogEvent. The field names of the raw data are
//    historical (e.g. "lattitude") and are normalized here.
//
// 3. Builders
//
//    SongsBuilder, ArtistsBuilder, UsersBuilder and TimeBuilder each keep at
//    most one row per natural key using a Deduper, which groups records in a
//    KeyStore. Memory scales with the number of distinct keys, and the
//    leveldb package provides an on-disk KeyStore for larger inputs.
//    FactBuilder joins events against the Catalog of songs by artist name.
//
// 4. Writer
//
//    The Writer groups rows of a Table into hive-style partitions, encodes
//    them with a FileCodec (see the avro package), stages everything under a
//    run-specific location and finally asks the Store to swap the staged
//    table in place of the old one. A failed write never leaves a table half
//    overwritten.
//
// The etl package wires these stages into a complete run.
package lake
