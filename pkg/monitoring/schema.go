package monitoring

import (
	"fmt"

	"cloud.google.com/go/bigquery"
)

// ExpectedField is a column the billing export must provide.
type ExpectedField struct {
	Name     string
	Type     bigquery.FieldType
	Repeated bool
	Fields   []ExpectedField
}

// BillingSchema lists the columns of the detailed billing export that the
// cost query reads.
var BillingSchema = []ExpectedField{
	{Name: "billing_account_id", Type: bigquery.StringFieldType},
	{Name: "service", Type: bigquery.RecordFieldType, Fields: []ExpectedField{
		{Name: "id", Type: bigquery.StringFieldType},
		{Name: "description", Type: bigquery.StringFieldType},
	}},
	{Name: "sku", Type: bigquery.RecordFieldType, Fields: []ExpectedField{
		{Name: "id", Type: bigquery.StringFieldType},
		{Name: "description", Type: bigquery.StringFieldType},
	}},
	{Name: "usage_start_time", Type: bigquery.TimestampFieldType},
	{Name: "usage_end_time", Type: bigquery.TimestampFieldType},
	{Name: "project", Type: bigquery.RecordFieldType, Fields: []ExpectedField{
		{Name: "id", Type: bigquery.StringFieldType},
	}},
	{Name: "labels", Type: bigquery.RecordFieldType, Repeated: true, Fields: []ExpectedField{
		{Name: "key", Type: bigquery.StringFieldType},
		{Name: "value", Type: bigquery.StringFieldType},
	}},
	{Name: "system_labels", Type: bigquery.RecordFieldType, Repeated: true, Fields: []ExpectedField{
		{Name: "key", Type: bigquery.StringFieldType},
		{Name: "value", Type: bigquery.StringFieldType},
	}},
	{Name: "cost", Type: bigquery.FloatFieldType},
}

// CheckSchema describes every way the schema fails to provide the
// expected fields. Extra columns are allowed.
func CheckSchema(schema bigquery.Schema, expected []ExpectedField) []string {
	return checkSchema("", schema, expected)
}

func checkSchema(prefix string, schema bigquery.Schema, expected []ExpectedField) []string {
	byName := map[string]*bigquery.FieldSchema{}
	for _, field := range schema {
		byName[field.Name] = field
	}
	var problems []string
	for _, want := range expected {
		name := prefix + want.Name
		got, ok := byName[want.Name]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s is missing", name))
			continue
		}
		if got.Type != want.Type {
			problems = append(problems, fmt.Sprintf("%s is %s, not %s", name, got.Type, want.Type))
			continue
		}
		if got.Repeated != want.Repeated {
			problems = append(problems, fmt.Sprintf("%s repeated is %v, not %v", name, got.Repeated, want.Repeated))
		}
		if len(want.Fields) > 0 {
			problems = append(problems, checkSchema(name+".", got.Schema, want.Fields)...)
		}
	}
	return problems
}
