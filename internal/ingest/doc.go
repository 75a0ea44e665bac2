// Package ingest turns YAML and JSON documents into records and patches.
//
// Documents are decoded with gopkg.in/yaml.v3 (or encoding/json for .json
// files), checked against the embedded CUE definitions in mechanism.cue and
// then decoded into mechanism types. The CUE check is purely structural;
// domain rules belong to the schema validator.
package ingest
