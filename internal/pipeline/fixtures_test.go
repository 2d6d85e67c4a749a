package pipeline

import (
	"github.com/dvloznov/pos-lakehouse/internal/lake"
)

// tenderTS is 2023-11-14T22:13:20Z, a Tuesday.
const tenderTS int64 = 1700000000000

const (
	docTX1 = `{"after":{"TransactionID":"TX1","StoreID":"S1","WorkstationID":1,"OperatorID":"op1",
		"TenderDateTimestamp":1700000000000,
		"LineItem":[
			{"SalesItem":{"ItemID":"A","ItemDescription":"Wine","DepartmentID":"D1","Amount":100,"Quantity":1}},
			{"Discount":{"ItemList":[{"ItemID":"A","DiscountAmount":10}]}}
		]}}`

	docTX2 = `{"after":{"TransactionID":"TX2","StoreID":"S1","WorkstationID":1,"OperatorID":"op1",
		"TenderDateTimestamp":1700000000000,
		"LineItem":[
			{"SalesItem":{"ItemID":"B","ItemDescription":"Cheese","Amount":20,"Quantity":2}},
			{"TransactionInfo":{"InfoType":"Canceled"}}
		]}}`

	docReturn = `{"after":{"TransactionID":"TX3","StoreID":"S2","WorkstationID":"2","OperatorID":"op2",
		"TenderDateTimestamp":"1700086400000",
		"LineItem":[
			{"ReturnItem":{"ItemID":"C","ItemDescription":"Bread","DepartmentID":7,"Amount":"4.5","Quantity":3}}
		]}}`

	docControl = `{"after":{"TransactionID":"CTL","ControlType":"EndOfDay","LineItem":[{"SalesItem":{"ItemID":"X","Amount":1,"Quantity":1}}]}}`

	docEmpty = `{"after":{"TransactionID":"TX4","StoreID":"S1","LineItem":[]}}`

	docNoAfter = `{"before":{"TransactionID":"TX5"},"op":"d"}`
)

func strPtr(s string) *string { return &s }
func i64Ptr(v int64) *int64   { return &v }

func bronzeOf(docs ...string) *BronzeSnapshot {
	snap := &BronzeSnapshot{Files: []string{"export.json"}}
	for i, d := range docs {
		raw, err := objectDocument([]byte(d))
		if err != nil {
			panic(err)
		}
		snap.Records = append(snap.Records, lake.BronzeRecord{
			Document:    string(raw),
			SourceFile:  "export.json",
			RecordIndex: int64(i),
		})
	}
	return snap
}
