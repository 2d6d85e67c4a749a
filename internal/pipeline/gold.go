package pipeline

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/pos-lakehouse/internal/lake"
	"github.com/dvloznov/pos-lakehouse/internal/logger"
	"github.com/dvloznov/pos-lakehouse/internal/storage"
)

// GoldOptions tunes Dimensionalize.
type GoldOptions struct {
	// Keys assigns surrogate keys. Nil means MonotonicKeys with one partition.
	Keys KeyGenerator
	// Location is the time zone used to derive transaction dates. Nil means UTC.
	Location *time.Location
}

// GoldSnapshot is the star schema derived from one silver snapshot.
type GoldSnapshot struct {
	Facts    []lake.FactTransactionItem
	Products []lake.DimProduct
	Stores   []lake.DimStore
	Dates    []lake.DimDate
}

// Counts returns the row count of every gold table.
func (g *GoldSnapshot) Counts() map[string]int {
	return map[string]int{
		lake.TableFactTransactionItems: len(g.Facts),
		lake.TableDimProducts:          len(g.Products),
		lake.TableDimStores:            len(g.Stores),
		lake.TableDimDate:              len(g.Dates),
	}
}

// dimension collects distinct natural keys in first-seen order.
type dimension struct {
	index map[string]int
	keys  []string
}

func newDimension() *dimension {
	return &dimension{index: make(map[string]int)}
}

// add registers nk and reports whether it was new.
func (d *dimension) add(nk string) bool {
	if _, ok := d.index[nk]; ok {
		return false
	}
	d.index[nk] = len(d.keys)
	d.keys = append(d.keys, nk)
	return true
}

// resolve returns the surrogate key of nk, or nil when nk is not a member.
func (d *dimension) resolve(nk string, surrogates []int64) *int64 {
	i, ok := d.index[nk]
	if !ok {
		return nil
	}
	k := surrogates[i]
	return &k
}

// Dimensionalize builds the product, store and date dimensions from the silver
// rows and the fact table that references them. Rows without an item_id are
// skipped; every other row yields exactly one fact.
func Dimensionalize(ctx context.Context, silver *SilverSnapshot, opts GoldOptions) (*GoldSnapshot, error) {
	log := logger.FromContext(ctx)

	keys := opts.Keys
	if keys == nil {
		keys = MonotonicKeys{Partitions: 1}
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	gold := &GoldSnapshot{}
	products, stores, dates := newDimension(), newDimension(), newDimension()
	rows := make([]lake.TransactionLineItem, 0, len(silver.Rows))
	rowDates := make([]string, 0, len(silver.Rows))

	for _, row := range silver.Rows {
		if row.ItemID == "" {
			continue
		}
		rows = append(rows, row)

		itemID := row.ItemID
		if products.add(compositeKey(&itemID, row.ItemDescription, row.DepartmentID)) {
			gold.Products = append(gold.Products, lake.DimProduct{
				ItemID:          row.ItemID,
				ItemDescription: row.ItemDescription,
				DepartmentID:    row.DepartmentID,
			})
		}

		if row.StoreID != "" && stores.add(row.StoreID) {
			gold.Stores = append(gold.Stores, lake.DimStore{StoreID: row.StoreID})
		}

		var dateKey string
		if row.TenderDateTimestamp != nil {
			d := civil.DateOf(time.UnixMilli(*row.TenderDateTimestamp).In(loc))
			dateKey = d.String()
			if dates.add(dateKey) {
				gold.Dates = append(gold.Dates, dimDate(d))
			}
		}
		rowDates = append(rowDates, dateKey)
	}

	productKeys, err := keys.Assign(products.keys)
	if err != nil {
		return nil, err
	}
	storeKeys, err := keys.Assign(stores.keys)
	if err != nil {
		return nil, err
	}
	dateKeys, err := keys.Assign(dates.keys)
	if err != nil {
		return nil, err
	}
	for i := range gold.Products {
		gold.Products[i].ProductKey = productKeys[i]
	}
	for i := range gold.Stores {
		gold.Stores[i].StoreKey = storeKeys[i]
	}
	for i := range gold.Dates {
		gold.Dates[i].DateKey = dateKeys[i]
	}

	gold.Facts = make([]lake.FactTransactionItem, 0, len(rows))
	for i, row := range rows {
		itemID := row.ItemID
		fact := lake.FactTransactionItem{
			ProductKey:           products.resolve(compositeKey(&itemID, row.ItemDescription, row.DepartmentID), productKeys),
			TransactionID:        row.TransactionID,
			TransactionTimestamp: row.TenderDateTimestamp,
			Quantity:             row.Quantity,
			GrossAmount:          row.GrossAmount,
			TotalDiscountAmount:  row.TotalDiscountAmount,
			NetAmount:            row.NetAmount,
		}
		if row.StoreID != "" {
			fact.StoreKey = stores.resolve(row.StoreID, storeKeys)
		}
		if rowDates[i] != "" {
			fact.DateKey = dates.resolve(rowDates[i], dateKeys)
		}
		gold.Facts = append(gold.Facts, fact)
	}

	log.Info().
		Int("facts", len(gold.Facts)).
		Int("products", len(gold.Products)).
		Int("stores", len(gold.Stores)).
		Int("dates", len(gold.Dates)).
		Int("skipped_rows", len(silver.Rows)-len(rows)).
		Msg("Gold dimensionalization complete")

	return gold, nil
}

func dimDate(d civil.Date) lake.DimDate {
	weekday := int32(d.In(time.UTC).Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return lake.DimDate{
		TransactionDate: d.String(),
		Year:            int32(d.Year),
		Quarter:         int32(d.Month-1)/3 + 1,
		Month:           int32(d.Month),
		Day:             int32(d.Day),
		DayOfWeek:       weekday,
	}
}

// WriteGold writes the four gold tables concurrently. A table that fails to
// write does not roll back the others.
func WriteGold(ctx context.Context, s storage.Store, root storage.Location, gold *GoldSnapshot) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return lake.WriteTable(ctx, s, root, lake.TableFactTransactionItems, gold.Facts)
	})
	g.Go(func() error {
		return lake.WriteTable(ctx, s, root, lake.TableDimProducts, gold.Products)
	})
	g.Go(func() error {
		return lake.WriteTable(ctx, s, root, lake.TableDimStores, gold.Stores)
	})
	g.Go(func() error {
		return lake.WriteTable(ctx, s, root, lake.TableDimDate, gold.Dates)
	})
	if err := g.Wait(); err != nil {
		return writeError("WriteGold", err)
	}
	return nil
}

// ReadGold loads the four gold tables under root.
func ReadGold(ctx context.Context, s storage.Store, root storage.Location) (*GoldSnapshot, error) {
	var (
		gold GoldSnapshot
		err  error
	)
	if gold.Facts, err = lake.ReadTable[lake.FactTransactionItem](ctx, s, root, lake.TableFactTransactionItems); err != nil {
		return nil, ingestionError("ReadGold", err)
	}
	if gold.Products, err = lake.ReadTable[lake.DimProduct](ctx, s, root, lake.TableDimProducts); err != nil {
		return nil, ingestionError("ReadGold", err)
	}
	if gold.Stores, err = lake.ReadTable[lake.DimStore](ctx, s, root, lake.TableDimStores); err != nil {
		return nil, ingestionError("ReadGold", err)
	}
	if gold.Dates, err = lake.ReadTable[lake.DimDate](ctx, s, root, lake.TableDimDate); err != nil {
		return nil, ingestionError("ReadGold", err)
	}
	return &gold, nil
}
