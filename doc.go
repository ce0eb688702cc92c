// Package vecdb is an embedded vector database for Go applications.
//
// A DB holds named collections; each collection stores fixed-dimension
// float32 vectors with optional metadata documents and source texts, backed
// by either an HNSW graph (approximate, fast) or a flat index (exact,
// brute-force). Searches return the k nearest neighbors under the
// configured metric and can be restricted by a MongoDB-style metadata
// filter. Collections snapshot to any io.Writer and restore from any
// io.Reader; the snapshot package adds durable stores on top.
//
//	db := vecdb.New()
//
//	coll, err := db.CreateCollection(ctx, vecdb.CollectionConfig{
//		Name:      "articles",
//		Dimension: 3,
//		Metric:    distance.MetricCosine,
//		Kind:      index.KindHNSW,
//	})
//	if err != nil { ... }
//
//	id, err := coll.Insert(ctx, vecdb.Item{
//		Vector:   []float32{0.1, 0.9, 0.0},
//		Metadata: metadata.Document{"lang": metadata.String("go")},
//	})
//
//	results, err := coll.Search(ctx, query, 5, func(o *vecdb.SearchOptions) {
//		o.Filter = metadata.Eq("lang", metadata.String("go"))
//		o.IncludeMetadata = true
//	})
package vecdb
