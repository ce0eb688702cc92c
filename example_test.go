package vecdb_test

import (
	"context"
	"fmt"
	"log"

	vecdb "github.com/hupe1980/vecdb"
	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/metadata"
)

// Example demonstrates the basic insert/search cycle.
func Example() {
	ctx := context.Background()

	db := vecdb.New()

	coll, err := db.CreateCollection(ctx, vecdb.CollectionConfig{
		Name:      "demo",
		Dimension: 3,
		Metric:    distance.MetricCosine,
		Kind:      index.KindFlat,
	})
	if err != nil {
		log.Fatal(err)
	}

	for _, v := range [][]float32{{1, 0, 0}, {0, 1, 0}, {0.9, 0.1, 0}} {
		if _, err := coll.Insert(ctx, vecdb.Item{Vector: v}); err != nil {
			log.Fatal(err)
		}
	}

	results, err := coll.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		log.Fatal(err)
	}

	for _, res := range results {
		fmt.Printf("id=%d\n", res.ID)
	}
	// Output:
	// id=0
	// id=2
}

// Example_filteredSearch demonstrates metadata filtering during search.
func Example_filteredSearch() {
	ctx := context.Background()

	db := vecdb.New()

	coll, err := db.CreateCollection(ctx, vecdb.CollectionConfig{
		Name:      "articles",
		Dimension: 2,
		Kind:      index.KindFlat,
	})
	if err != nil {
		log.Fatal(err)
	}

	items := []vecdb.Item{
		{Vector: []float32{1, 0}, Metadata: metadata.Document{"lang": metadata.String("go")}},
		{Vector: []float32{0.9, 0.1}, Metadata: metadata.Document{"lang": metadata.String("rust")}},
		{Vector: []float32{0.8, 0.2}, Metadata: metadata.Document{"lang": metadata.String("go")}},
	}
	if result := coll.InsertBatch(ctx, items); result.Failed() > 0 {
		log.Fatal("batch insert failed")
	}

	results, err := coll.Search(ctx, []float32{1, 0}, 2, func(o *vecdb.SearchOptions) {
		o.Filter = metadata.Eq("lang", metadata.String("go"))
	})
	if err != nil {
		log.Fatal(err)
	}

	for _, res := range results {
		fmt.Printf("id=%d\n", res.ID)
	}
	// Output:
	// id=0
	// id=2
}
