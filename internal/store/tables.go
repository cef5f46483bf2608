package store

// Table and column names of the catalog store.
const (
	ProductTable   = "product"
	ColProdCode    = "prodcode"
	ColDescription = "description"
	ColUnit        = "unit"
	PriceHistTable = "pricehist"
	ColEffDate     = "effdate"
	ColUnitPrice   = "unitprice"
)

// Product is the product(prodcode PK, description, unit) table.
var Product = Table{
	Name: ProductTable,
	Columns: []Column{
		{Name: ColProdCode, Type: Text},
		{Name: ColDescription, Type: Text},
		{Name: ColUnit, Type: Text},
	},
	Key: []string{ColProdCode},
}

// PriceHist is the pricehist(prodcode FK, effdate, unitprice) table keyed by (prodcode, effdate).
var PriceHist = Table{
	Name: PriceHistTable,
	Columns: []Column{
		{Name: ColProdCode, Type: Text},
		{Name: ColEffDate, Type: Date},
		{Name: ColUnitPrice, Type: Numeric},
	},
	Key:  []string{ColProdCode, ColEffDate},
	Refs: []Reference{{Column: ColProdCode, Table: ProductTable, RefColumn: ColProdCode}},
}

// CatalogSchema returns the schema of the catalog tables.
func CatalogSchema() Schema {
	return NewSchema(Product, PriceHist)
}
