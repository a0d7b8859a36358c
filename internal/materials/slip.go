package materials

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var slipPrinter = message.NewPrinter(language.English)

// formatSlip fills the human-readable quantity column, grouping thousands
// so warehouse staff can read large issue quantities at a glance.
func formatSlip(slip *DispatchSlip) {
	for i := range slip.Lines {
		line := &slip.Lines[i]
		line.QuantityText = slipPrinter.Sprintf("%d %s", line.Quantity, line.Unit)
	}
}
