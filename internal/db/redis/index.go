package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/jobdex/internal/db"
)

// CreateIndex creates an FT index from the given definition.
func (s *Store) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	args, err := buildCreateArgs(def)
	if err != nil {
		return err
	}

	cmd := s.b().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Err: err}
	}
	return nil
}

// IndexExists probes index existence via FT.INFO; "unknown index name" means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isUnknownIndex(err) {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Err: err}
	}
	return true, nil
}

// IndexInfo reads the document count and vector dimension via FT.INFO.
// Redis reports the dimension as "dim" on the attribute, valkey-search as
// "dimensions" nested under "index"; both layouts are handled.
func (s *Store) IndexInfo(ctx context.Context, name string) (*db.IndexInfo, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		if isUnknownIndex(err) {
			return nil, db.ErrIndexNotFound
		}
		return nil, &db.Error{Op: db.OpIndexInfo, Err: err}
	}

	info := &db.IndexInfo{}
	for i := 0; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		switch strings.ToLower(key) {
		case "num_docs":
			if n, err := raw[i+1].AsInt64(); err == nil {
				info.NumDocs = int(n)
			}
		case "attributes", "fields":
			if attrs, err := raw[i+1].ToArray(); err == nil {
				info.VectorDim = findVectorDim(attrs)
			}
		}
	}
	return info, nil
}

func isUnknownIndex(err error) bool {
	return isRedisErr(err, "unknown index name") || isRedisErr(err, "not found")
}

func findVectorDim(msgs []rueidis.RedisMessage) int {
	for i := range msgs {
		if msgs[i].IsArray() {
			nested, _ := msgs[i].ToArray()
			if d := findVectorDim(nested); d > 0 {
				return d
			}
			continue
		}
		key, err := msgs[i].ToString()
		if err != nil || i+1 >= len(msgs) {
			continue
		}
		if k := strings.ToLower(key); k == "dim" || k == "dimensions" {
			if n, err := msgs[i+1].AsInt64(); err == nil && n > 0 {
				return int(n)
			}
		}
	}
	return 0
}

func buildCreateArgs(idx *db.IndexDefinition) ([]string, error) {
	if idx == nil {
		return nil, fmt.Errorf("%w: definition is required", db.ErrInvalidIndex)
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}

	args := []string{idx.Name, "ON", "HASH"}
	if len(idx.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(idx.Prefixes)))
		args = append(args, idx.Prefixes...)
	}

	args = append(args, "SCHEMA")
	for _, tag := range idx.Tags {
		args = append(args, tag, "TAG")
	}
	if idx.Vector != nil {
		args = append(args, vectorArgs(idx.Vector)...)
	}
	return args, nil
}

// vectorArgs renders "<name> VECTOR HNSW <nargs> TYPE FLOAT32 DIM <d> DISTANCE_METRIC <m> [M <m>] [EF_CONSTRUCTION <ef>]".
func vectorArgs(v *db.VectorField) []string {
	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(v.Dim),
		"DISTANCE_METRIC", string(v.Distance),
	}
	if v.HNSW.M > 0 {
		attrs = append(attrs, "M", strconv.Itoa(v.HNSW.M))
	}
	if v.HNSW.EFConstruct > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(v.HNSW.EFConstruct))
	}

	out := make([]string, 0, 4+len(attrs))
	out = append(out, v.Name, "VECTOR", "HNSW", strconv.Itoa(len(attrs)))
	return append(out, attrs...)
}
