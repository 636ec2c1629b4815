package scanning

// InvoicePrompt is the structured extraction request sent to the LLM as the
// content of a single user message.
type InvoicePrompt struct {
	Function    string   `json:"function"`
	Extract     []string `json:"extract"`
	FileText    string   `json:"file_text"`
	Instruction string   `json:"instruction"`
}

var invoiceFields = []string{
	"invoice_number (string)",
	"invoice_date (string, format: DD-MMM-YYYY if possible)",
	"vendor_name (string)",
	"vendor_address (string or null)",
	"port_name (string or null)",
	"port_address (string or null)",
	"customer_name (string or null)",
	"customer_address (string or null)",
	"excl_tax_amount (number)",
	"tax_amount (number)",
	"discount_amount (number)",
	"total_amount (number)",
	"currency (string, e.g. USD, INR)",
	"line_items (array of {description, quantity, unit_price, excl_tax_amount, tax_amount, discount_amount, total_amount})",
}

const invoiceInstruction = "The following is raw text extracted from an invoice. " +
	"If amounts are already included in line items and also shown in a summary, do not double-count them. " +
	"Focus only on the final summary block if available. " +
	"Respond with only valid JSON. No explanation or extra text. " +
	"For fields with 'must be one of', return only an exact match or null."

// BuildInvoicePrompt returns the extraction request for text. It does not
// validate text; an empty string yields a valid prompt.
func BuildInvoicePrompt(text string) InvoicePrompt {
	fields := make([]string, len(invoiceFields))
	copy(fields, invoiceFields)
	return InvoicePrompt{
		Function:    "extract",
		Extract:     fields,
		FileText:    text,
		Instruction: invoiceInstruction,
	}
}
