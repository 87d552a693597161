package modbus

// Identity is what Read Device Identification reports
type Identity struct {
	VendorName  string `json:"vendor_name"`
	ProductCode string `json:"product_code"`
	Revision    string `json:"revision"`
	VendorURL   string `json:"vendor_url"`
	ProductName string `json:"product_name"`
	ModelName   string `json:"model_name"`
}

// object returns the identification object by id, ok false when undefined
func (id Identity) object(objectID byte) (string, bool) {
	switch objectID {
	case 0x00:
		return id.VendorName, true
	case 0x01:
		return id.ProductCode, true
	case 0x02:
		return id.Revision, true
	case 0x03:
		return id.VendorURL, true
	case 0x04:
		return id.ProductName, true
	case 0x05:
		return id.ModelName, true
	default:
		return "", false
	}
}
