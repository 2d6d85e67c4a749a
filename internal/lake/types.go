// Package lake defines the persisted row types of the bronze, silver and gold
// layers and reads/writes them as parquet tables.
package lake

import "time"

// Table names relative to the output location. Every table is a directory
// holding parquet part files; a write replaces the whole directory.
const (
	TableBronze               = "bronze"
	TableSilver               = "silver"
	TableFactTransactionItems = "gold/fact_transaction_items"
	TableDimProducts          = "gold/dim_products"
	TableDimStores            = "gold/dim_stores"
	TableDimDate              = "gold/dim_date"
)

// GoldTables lists the gold tables in publishing order.
var GoldTables = []string{
	TableFactTransactionItems,
	TableDimProducts,
	TableDimStores,
	TableDimDate,
}

// BronzeRecord is one ingested export document with provenance metadata.
type BronzeRecord struct {
	// Document is the source JSON document as written, without surrounding
	// whitespace.
	Document           string    `parquet:"document"`
	IngestionTimestamp time.Time `parquet:"ingestion_timestamp"`
	SourceFile         string    `parquet:"source_file"`
	// RecordIndex is the position of the document within its source file.
	RecordIndex int64 `parquet:"record_index"`
}

// TransactionLineItem is a silver row: one sale or return line with its
// attributed discount. Column names follow the export for transaction fields.
type TransactionLineItem struct {
	TransactionID       string  `parquet:"TransactionID"`
	StoreID             string  `parquet:"StoreID"`
	WorkstationID       string  `parquet:"WorkstationID"`
	OperatorID          string  `parquet:"OperatorID"`
	TenderDateTimestamp *int64  `parquet:"TenderDateTimestamp"`
	ItemID              string  `parquet:"item_id"`
	ItemDescription     *string `parquet:"item_description"`
	DepartmentID        *string `parquet:"department_id"`
	GrossAmount         float64 `parquet:"gross_amount"`
	Quantity            float64 `parquet:"quantity"`
	TotalDiscountAmount float64 `parquet:"total_discount_amount"`
	NetAmount           float64 `parquet:"net_amount"`
}

type DimProduct struct {
	ProductKey      int64   `parquet:"product_key"`
	ItemID          string  `parquet:"item_id"`
	ItemDescription *string `parquet:"item_description"`
	DepartmentID    *string `parquet:"department_id"`
}

type DimStore struct {
	StoreKey int64  `parquet:"store_key"`
	StoreID  string `parquet:"store_id"`
}

// DimDate holds one calendar date present in silver. TransactionDate is ISO
// formatted (YYYY-MM-DD).
type DimDate struct {
	DateKey         int64  `parquet:"date_key"`
	TransactionDate string `parquet:"transaction_date"`
	Year            int32  `parquet:"year"`
	Quarter         int32  `parquet:"quarter"`
	Month           int32  `parquet:"month"`
	Day             int32  `parquet:"day"`
	// DayOfWeek is ISO numbered: Monday=1 ... Sunday=7.
	DayOfWeek int32 `parquet:"day_of_week"`
}

// FactTransactionItem references the dimensions by surrogate key. A nil key
// means the row had no matching dimension member.
type FactTransactionItem struct {
	ProductKey           *int64  `parquet:"product_key"`
	StoreKey             *int64  `parquet:"store_key"`
	DateKey              *int64  `parquet:"date_key"`
	TransactionID        string  `parquet:"transaction_id"`
	TransactionTimestamp *int64  `parquet:"transaction_timestamp"`
	Quantity             float64 `parquet:"quantity"`
	GrossAmount          float64 `parquet:"gross_amount"`
	TotalDiscountAmount  float64 `parquet:"total_discount_amount"`
	NetAmount            float64 `parquet:"net_amount"`
}
