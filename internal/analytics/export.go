package analytics

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pricebook/pricebook/internal/catalog/pricehist"
)

// WriteMoversCSV serialises the movers table.
func WriteMoversCSV(w io.Writer, movers []Mover) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Code", "Description", "Previous", "Current", "Since", "Change %"}); err != nil {
		return err
	}
	for _, m := range movers {
		if err := writer.Write([]string{
			m.Code,
			m.Description,
			m.Previous.StringFixed(2),
			m.Current.StringFixed(2),
			m.Since.Format(pricehist.DateLayout),
			strconv.FormatFloat(m.ChangePct, 'f', 2, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCategoriesCSV serialises the category averages.
func WriteCategoriesCSV(w io.Writer, categories []CategoryAverage) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Category", "Name", "Products", "Priced", "Average"}); err != nil {
		return err
	}
	for _, c := range categories {
		if err := writer.Write([]string{
			c.Category,
			c.Name,
			strconv.Itoa(c.Products),
			strconv.Itoa(c.Priced),
			c.Average.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
