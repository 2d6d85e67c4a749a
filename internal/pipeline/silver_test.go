package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dvloznov/pos-lakehouse/internal/lake"
	"github.com/dvloznov/pos-lakehouse/internal/storage"
)

func TestTransform_CanceledTransactionExample(t *testing.T) {
	snap, err := Transform(context.Background(), bronzeOf(docTX1, docTX2), SilverOptions{Partitions: 2})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	want := []lake.TransactionLineItem{{
		TransactionID:       "TX1",
		StoreID:             "S1",
		WorkstationID:       "1",
		OperatorID:          "op1",
		TenderDateTimestamp: i64Ptr(tenderTS),
		ItemID:              "A",
		ItemDescription:     strPtr("Wine"),
		DepartmentID:        strPtr("D1"),
		GrossAmount:         100,
		Quantity:            1,
		TotalDiscountAmount: 10,
		NetAmount:           90,
	}}
	if diff := cmp.Diff(want, snap.Rows); diff != "" {
		t.Errorf("Transform() rows mismatch (-want +got):\n%s", diff)
	}
	if snap.Stats.CanceledTransactions != 1 || snap.Stats.CanceledRows != 2 {
		t.Errorf("canceled stats = (%d tx, %d rows), want (1, 2)", snap.Stats.CanceledTransactions, snap.Stats.CanceledRows)
	}
}

func TestTransform_ReturnIsNegated(t *testing.T) {
	snap, err := Transform(context.Background(), bronzeOf(docReturn), SilverOptions{})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if len(snap.Rows) != 1 {
		t.Fatalf("Transform() = %d rows, want 1", len(snap.Rows))
	}

	row := snap.Rows[0]
	if row.GrossAmount != -4.5 || row.Quantity != -3 {
		t.Errorf("return amounts = (%v, %v), want (-4.5, -3)", row.GrossAmount, row.Quantity)
	}
	if row.TotalDiscountAmount != 0 || row.NetAmount != -4.5 {
		t.Errorf("return discount/net = (%v, %v), want (0, -4.5)", row.TotalDiscountAmount, row.NetAmount)
	}
	if row.DepartmentID == nil || *row.DepartmentID != "7" {
		t.Errorf("DepartmentID = %v, want 7", row.DepartmentID)
	}
	if row.TenderDateTimestamp == nil || *row.TenderDateTimestamp != 1700086400000 {
		t.Errorf("TenderDateTimestamp = %v, want 1700086400000", row.TenderDateTimestamp)
	}
}

func TestTransform_DiscountAggregation(t *testing.T) {
	doc := `{"after":{"TransactionID":"TX9","StoreID":"S1","LineItem":[
		{"SalesItem":{"ItemID":"A","Amount":50,"Quantity":1}},
		{"SalesItem":{"ItemID":"A","Amount":30,"Quantity":1}},
		{"SalesItem":{"ItemID":"B","Amount":10,"Quantity":1}},
		{"Discount":{"ItemList":[{"ItemID":"A","DiscountAmount":"2.5"},{"ItemID":"A","DiscountAmount":1.5},{"ItemID":"Z","DiscountAmount":9}]}},
		{"Discount":{"ItemList":[{"DiscountAmount":3}]}}
	]}}`

	snap, err := Transform(context.Background(), bronzeOf(doc), SilverOptions{})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	type amounts struct{ Gross, Discount, Net float64 }
	var got []amounts
	for _, r := range snap.Rows {
		got = append(got, amounts{r.GrossAmount, r.TotalDiscountAmount, r.NetAmount})
	}
	// The discount total attaches to every line of the item.
	want := []amounts{{50, 4, 46}, {30, 4, 26}, {10, 0, 10}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Transform() amounts mismatch (-want +got):\n%s", diff)
	}
	if snap.Stats.DiscountEntries != 4 {
		t.Errorf("DiscountEntries = %d, want 4", snap.Stats.DiscountEntries)
	}
}

func TestTransform_ExcludedRecords(t *testing.T) {
	unknown := `{"after":{"TransactionID":"TX6","StoreID":"S1","LineItem":[
		{"SalesItem":{"ItemID":"A","Amount":1,"Quantity":1},"ReturnItem":{"ItemID":"A","Amount":1,"Quantity":1}},
		{"Unrelated":{}},
		{"SalesItem":{"ItemDescription":"no id","Amount":5,"Quantity":1}},
		{"TransactionInfo":{"InfoType":"Suspended"}},
		{"SalesItem":{"ItemID":"K","Amount":2,"Quantity":1}}
	]}}`

	snap, err := Transform(context.Background(), bronzeOf(docControl, docEmpty, docNoAfter, unknown), SilverOptions{Partitions: 3})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}

	want := SilverStats{
		Records:          4,
		Transactions:     1,
		ControlRecords:   1,
		EmptyRecords:     2,
		ExplodedRows:     5,
		UnknownLineItems: 2,
		UnresolvedItems:  1,
		Rows:             1,
	}
	if diff := cmp.Diff(want, snap.Stats); diff != "" {
		t.Errorf("Transform() stats mismatch (-want +got):\n%s", diff)
	}
	if snap.Rows[0].ItemID != "K" {
		t.Errorf("row item_id = %q, want K", snap.Rows[0].ItemID)
	}
}

func TestTransform_CancellationAcrossPartitions(t *testing.T) {
	sale := `{"after":{"TransactionID":"TX7","StoreID":"S1","LineItem":[{"SalesItem":{"ItemID":"A","Amount":5,"Quantity":1}}]}}`
	cancel := `{"after":{"TransactionID":"TX7","StoreID":"S1","LineItem":[{"TransactionInfo":{"InfoType":"Canceled"}}]}}`

	for _, partitions := range []int{1, 2} {
		snap, err := Transform(context.Background(), bronzeOf(sale, docTX1, cancel), SilverOptions{Partitions: partitions})
		if err != nil {
			t.Fatalf("Transform(partitions=%d) error = %v", partitions, err)
		}
		for _, r := range snap.Rows {
			if r.TransactionID == "TX7" {
				t.Errorf("Transform(partitions=%d) kept canceled TX7 row", partitions)
			}
		}
	}
}

func TestTransform_CancellationOnMixedLineItem(t *testing.T) {
	mixed := `{"after":{"TransactionID":"TX9","StoreID":"S1","LineItem":[
		{"SalesItem":{"ItemID":"Z","Amount":5,"Quantity":1}},
		{"TransactionInfo":{"InfoType":"Canceled"},"Discount":{"ItemList":[{"ItemID":"Z","DiscountAmount":1}]}}
	]}}`

	snap, err := Transform(context.Background(), bronzeOf(mixed, docTX1), SilverOptions{Partitions: 2})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	for _, r := range snap.Rows {
		if r.TransactionID == "TX9" {
			t.Errorf("Transform() kept canceled TX9 row for item %q", r.ItemID)
		}
	}
	if snap.Stats.CanceledTransactions != 1 || snap.Stats.CanceledRows != 2 {
		t.Errorf("canceled stats = (%d tx, %d rows), want (1, 2)", snap.Stats.CanceledTransactions, snap.Stats.CanceledRows)
	}
}

func TestTransform_PartitionInvariance(t *testing.T) {
	bronze := bronzeOf(docTX1, docTX2, docReturn, docControl, docEmpty, docNoAfter, docTX1, docReturn)

	base, err := Transform(context.Background(), bronze, SilverOptions{Partitions: 1})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	for _, partitions := range []int{0, 2, 3, 8, 50} {
		got, err := Transform(context.Background(), bronze, SilverOptions{Partitions: partitions})
		if err != nil {
			t.Fatalf("Transform(partitions=%d) error = %v", partitions, err)
		}
		if diff := cmp.Diff(base, got); diff != "" {
			t.Errorf("Transform(partitions=%d) differs from single partition (-want +got):\n%s", partitions, diff)
		}
	}
}

func TestTransform_NetInvariant(t *testing.T) {
	snap, err := Transform(context.Background(), bronzeOf(docTX1, docReturn, docTX1), SilverOptions{Partitions: 2})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	for i, r := range snap.Rows {
		if r.NetAmount != r.GrossAmount-r.TotalDiscountAmount {
			t.Errorf("row %d: net %v != gross %v - discount %v", i, r.NetAmount, r.GrossAmount, r.TotalDiscountAmount)
		}
	}
}

func TestTransform_MalformedPayload(t *testing.T) {
	tests := map[string]string{
		"amount is an object":    `{"after":{"TransactionID":"T","LineItem":[{"SalesItem":{"ItemID":"A","Amount":{"v":1}}}]}}`,
		"line item not an array": `{"after":{"TransactionID":"T","LineItem":[1, 2]}}`,
		"after not an object":    `{"after":"oops"}`,
		"identifier is a bool":   `{"after":{"TransactionID":true,"LineItem":[]}}`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Transform(context.Background(), bronzeOf(doc), SilverOptions{})
			if !errors.Is(err, ErrTransform) {
				t.Errorf("Transform() error = %v, want ErrTransform", err)
			}
		})
	}
}

func TestWriteReadSilver(t *testing.T) {
	ctx := context.Background()
	s := storage.NewLocalStore()
	root, _ := storage.ParseLocation(t.TempDir())

	snap, err := Transform(ctx, bronzeOf(docTX1, docReturn), SilverOptions{})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if err := WriteSilver(ctx, s, root, snap); err != nil {
		t.Fatalf("WriteSilver() error = %v", err)
	}

	got, err := ReadSilver(ctx, s, root)
	if err != nil {
		t.Fatalf("ReadSilver() error = %v", err)
	}
	if diff := cmp.Diff(snap.Rows, got.Rows); diff != "" {
		t.Errorf("ReadSilver() mismatch (-want +got):\n%s", diff)
	}

	_, err = ReadSilver(ctx, s, root.Join("elsewhere"))
	if !errors.Is(err, ErrIngestion) {
		t.Errorf("ReadSilver() on empty root error = %v, want ErrIngestion", err)
	}
}
