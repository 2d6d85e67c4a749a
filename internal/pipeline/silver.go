package pipeline

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/pos-lakehouse/internal/lake"
	"github.com/dvloznov/pos-lakehouse/internal/logger"
	"github.com/dvloznov/pos-lakehouse/internal/pos"
	"github.com/dvloznov/pos-lakehouse/internal/storage"
)

// SilverOptions tunes Transform.
type SilverOptions struct {
	// Partitions is the number of partitions processed concurrently. Values
	// below 1 mean 1. The result does not depend on it.
	Partitions int
}

// SilverStats counts what each transform step kept and dropped.
type SilverStats struct {
	Records              int `json:"records"`
	Transactions         int `json:"transactions"`
	ControlRecords       int `json:"control_records"`
	EmptyRecords         int `json:"empty_records"`
	ExplodedRows         int `json:"exploded_rows"`
	CanceledTransactions int `json:"canceled_transactions"`
	CanceledRows         int `json:"canceled_rows"`
	UnknownLineItems     int `json:"unknown_line_items"`
	UnresolvedItems      int `json:"unresolved_items"`
	DiscountEntries      int `json:"discount_entries"`
	Rows                 int `json:"rows"`
}

func (s *SilverStats) add(o SilverStats) {
	s.Records += o.Records
	s.Transactions += o.Transactions
	s.ControlRecords += o.ControlRecords
	s.EmptyRecords += o.EmptyRecords
	s.ExplodedRows += o.ExplodedRows
	s.CanceledRows += o.CanceledRows
	s.UnknownLineItems += o.UnknownLineItems
	s.UnresolvedItems += o.UnresolvedItems
	s.DiscountEntries += o.DiscountEntries
	s.Rows += o.Rows
}

// Metrics flattens the stats for the run ledger.
func (s SilverStats) Metrics() map[string]int {
	return map[string]int{
		"silver_records":               s.Records,
		"silver_transactions":          s.Transactions,
		"silver_control_records":       s.ControlRecords,
		"silver_empty_records":         s.EmptyRecords,
		"silver_exploded_rows":         s.ExplodedRows,
		"silver_canceled_transactions": s.CanceledTransactions,
		"silver_canceled_rows":         s.CanceledRows,
		"silver_unknown_line_items":    s.UnknownLineItems,
		"silver_unresolved_items":      s.UnresolvedItems,
		"silver_discount_entries":      s.DiscountEntries,
		"silver_rows":                  s.Rows,
	}
}

// SilverSnapshot is the unified line-item table.
type SilverSnapshot struct {
	Rows  []lake.TransactionLineItem
	Stats SilverStats
}

// explodedRow is one line item with its transaction payload.
type explodedRow struct {
	tx   *pos.Payload
	item pos.LineItem
}

// pendingLine is a resolved sale or return awaiting its discount.
type pendingLine struct {
	row      lake.TransactionLineItem
	gross    decimal.Decimal
	quantity decimal.Decimal
}

type discountKey struct {
	transactionID string
	itemID        string
}

type silverPartition struct {
	exploded  []explodedRow
	canceled  map[string]struct{}
	lines     []pendingLine
	discounts map[discountKey]decimal.Decimal
	rows      []lake.TransactionLineItem
	stats     SilverStats
}

// Transform flattens, filters and enriches the bronze records into silver
// line items. Records are split into partitions that run concurrently; the
// canceled-transaction set is the one point where all partitions meet.
func Transform(ctx context.Context, bronze *BronzeSnapshot, opts SilverOptions) (*SilverSnapshot, error) {
	log := logger.FromContext(ctx)

	spans := splitSpans(len(bronze.Records), opts.Partitions)
	parts := make([]*silverPartition, len(spans))

	// Steps 1 and 2: project, filter and explode; collect local cancellations.
	err := forEachPartition(ctx, spans, func(ctx context.Context, idx int, sp span) error {
		p := &silverPartition{canceled: make(map[string]struct{})}
		parts[idx] = p
		return p.explode(bronze.Records[sp.start:sp.end])
	})
	if err != nil {
		return nil, err
	}

	// Step 3: gather the canceled IDs at the coordinator.
	canceled := make(map[string]struct{})
	for _, p := range parts {
		for id := range p.canceled {
			canceled[id] = struct{}{}
		}
	}
	log.Debug().Int("canceled_transactions", len(canceled)).Msg("Gathered canceled transactions")

	// Steps 3 to 5 per partition: broadcast filter, unify, partial discount sums.
	err = forEachPartition(ctx, spans, func(ctx context.Context, idx int, _ span) error {
		parts[idx].unify(canceled)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Step 5: merge partial sums into the (TransactionID, item_id) aggregate.
	discounts := make(map[discountKey]decimal.Decimal)
	for _, p := range parts {
		for k, v := range p.discounts {
			discounts[k] = discounts[k].Add(v)
		}
	}

	// Step 6: left join and net amount.
	err = forEachPartition(ctx, spans, func(ctx context.Context, idx int, _ span) error {
		parts[idx].join(discounts)
		return nil
	})
	if err != nil {
		return nil, err
	}

	snap := &SilverSnapshot{}
	for _, p := range parts {
		snap.Rows = append(snap.Rows, p.rows...)
		snap.Stats.add(p.stats)
	}
	snap.Stats.CanceledTransactions = len(canceled)
	snap.Stats.Rows = len(snap.Rows)

	event := log.Info()
	if snap.Stats.UnresolvedItems > 0 || snap.Stats.UnknownLineItems > 0 {
		event = log.Warn()
	}
	event.
		Int("records", snap.Stats.Records).
		Int("exploded_rows", snap.Stats.ExplodedRows).
		Int("canceled_transactions", snap.Stats.CanceledTransactions).
		Int("canceled_rows", snap.Stats.CanceledRows).
		Int("unknown_line_items", snap.Stats.UnknownLineItems).
		Int("unresolved_items", snap.Stats.UnresolvedItems).
		Int("rows", snap.Stats.Rows).
		Msg("Silver transform complete")

	return snap, nil
}

func (p *silverPartition) explode(records []lake.BronzeRecord) error {
	for _, rec := range records {
		p.stats.Records++

		doc, err := pos.DecodeDocument([]byte(rec.Document))
		if err != nil {
			return transformError("Transform", fmt.Errorf("%s record %d: %w", rec.SourceFile, rec.RecordIndex, err))
		}

		tx := doc.After
		switch {
		case tx == nil:
			p.stats.EmptyRecords++
			continue
		case tx.IsControl():
			p.stats.ControlRecords++
			continue
		case !tx.HasLineItems():
			p.stats.EmptyRecords++
			continue
		}

		items, err := tx.LineItems()
		if err != nil {
			return transformError("Transform", fmt.Errorf("transaction %q: %w", tx.TransactionID, err))
		}

		p.stats.Transactions++
		for _, item := range items {
			p.exploded = append(p.exploded, explodedRow{tx: tx, item: item})
			if item.IsCancellation() {
				p.canceled[tx.TransactionID.String()] = struct{}{}
			}
		}
		p.stats.ExplodedRows += len(items)
	}
	return nil
}

func (p *silverPartition) unify(canceled map[string]struct{}) {
	p.discounts = make(map[discountKey]decimal.Decimal)

	for _, er := range p.exploded {
		txID := er.tx.TransactionID.String()
		if _, ok := canceled[txID]; ok {
			p.stats.CanceledRows++
			continue
		}

		switch er.item.Kind() {
		case pos.KindSalesItem, pos.KindReturnItem:
			it := er.item.Item()
			if it.ItemID == "" {
				p.stats.UnresolvedItems++
				continue
			}
			gross, quantity, _ := er.item.SignedAmounts()
			p.lines = append(p.lines, pendingLine{
				row: lake.TransactionLineItem{
					TransactionID:       txID,
					StoreID:             er.tx.StoreID.String(),
					WorkstationID:       er.tx.WorkstationID.String(),
					OperatorID:          er.tx.OperatorID.String(),
					TenderDateTimestamp: er.tx.TenderDateTimestamp.Int64Ptr(),
					ItemID:              it.ItemID.String(),
					ItemDescription:     it.ItemDescription,
					DepartmentID:        flexPtr(it.DepartmentID),
				},
				gross:    gross,
				quantity: quantity,
			})
		case pos.KindDiscount:
			for _, entry := range er.item.Discount().ItemList {
				p.stats.DiscountEntries++
				if entry.ItemID == "" {
					continue
				}
				k := discountKey{transactionID: txID, itemID: entry.ItemID.String()}
				p.discounts[k] = p.discounts[k].Add(entry.DiscountAmount)
			}
		case pos.KindTransactionInfo:
			// Informational only; cancellations were handled above.
		default:
			p.stats.UnknownLineItems++
		}
	}
	p.exploded = nil
}

func (p *silverPartition) join(discounts map[discountKey]decimal.Decimal) {
	p.rows = make([]lake.TransactionLineItem, 0, len(p.lines))
	for _, line := range p.lines {
		total := discounts[discountKey{transactionID: line.row.TransactionID, itemID: line.row.ItemID}]

		row := line.row
		row.GrossAmount = line.gross.InexactFloat64()
		row.Quantity = line.quantity.InexactFloat64()
		row.TotalDiscountAmount = total.InexactFloat64()
		row.NetAmount = row.GrossAmount - row.TotalDiscountAmount
		p.rows = append(p.rows, row)
	}
	p.lines = nil
}

func flexPtr(f *pos.FlexString) *string {
	if f == nil {
		return nil
	}
	s := f.String()
	return &s
}

// WriteSilver replaces the silver table under root.
func WriteSilver(ctx context.Context, s storage.Store, root storage.Location, snap *SilverSnapshot) error {
	if err := lake.WriteTable(ctx, s, root, lake.TableSilver, snap.Rows); err != nil {
		return writeError("WriteSilver", err)
	}
	return nil
}

// ReadSilver loads the silver table under root. Stats are not persisted, so
// only Rows is populated.
func ReadSilver(ctx context.Context, s storage.Store, root storage.Location) (*SilverSnapshot, error) {
	rows, err := lake.ReadTable[lake.TransactionLineItem](ctx, s, root, lake.TableSilver)
	if err != nil {
		return nil, ingestionError("ReadSilver", err)
	}
	return &SilverSnapshot{Rows: rows, Stats: SilverStats{Rows: len(rows)}}, nil
}
