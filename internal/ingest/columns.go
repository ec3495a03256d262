package ingest

import "strings"

// Canonical column names understood by the ingester.
const (
	ColFormNo         = "FormNo"
	ColStorerkey      = "Storerkey"
	ColSKU            = "SKU"
	ColLoc            = "Loc"
	ColLot            = "Lot"
	ColID             = "ID"
	ColQtyOnHand      = "Qty_OnHand"
	ColQtyAllocated   = "Qty_Allocated"
	ColQtyAvailable   = "Qty_Available"
	ColLottable01     = "Lottable01"
	ColProjectScope   = "Project_Scope"
	ColLottable10     = "Lottable10"
	ColProjectID      = "Project_ID"
	ColWBSElement     = "WBS_Element"
	ColSKUDescription = "SKU_Description"
	ColSKUGroup       = "SKUGRP"
	ColReceivedDate   = "Received_Date"
	ColHUID           = "HUID"
	ColOwnerID        = "Owner_ID"
	ColStdCube        = "stdcube"
)

// RequiredColumns must all be present in the header row.
var RequiredColumns = []string{
	ColFormNo,
	ColStorerkey,
	ColSKU,
	ColLoc,
	ColLot,
	ColID,
	ColQtyOnHand,
	ColQtyAllocated,
	ColQtyAvailable,
}

var headerSynonyms = map[string]string{
	"formno":          ColFormNo,
	"form_no":         ColFormNo,
	"form no":         ColFormNo,
	"storerkey":       ColStorerkey,
	"storer_key":      ColStorerkey,
	"sku":             ColSKU,
	"loc":             ColLoc,
	"location":        ColLoc,
	"lot":             ColLot,
	"id":              ColID,
	"item_id":         ColID,
	"itemid":          ColID,
	"qty_onhand":      ColQtyOnHand,
	"qtyonhand":       ColQtyOnHand,
	"qty onhand":      ColQtyOnHand,
	"qty_allocated":   ColQtyAllocated,
	"qtyallocated":    ColQtyAllocated,
	"qty allocated":   ColQtyAllocated,
	"qty_available":   ColQtyAvailable,
	"qtyavailable":    ColQtyAvailable,
	"qty available":   ColQtyAvailable,
	"lottable01":      ColLottable01,
	"lottable_01":     ColLottable01,
	"project_scope":   ColProjectScope,
	"projectscope":    ColProjectScope,
	"lottable10":      ColLottable10,
	"lottable_10":     ColLottable10,
	"project_id":      ColProjectID,
	"projectid":       ColProjectID,
	"wbs_element":     ColWBSElement,
	"wbselement":      ColWBSElement,
	"sku_description": ColSKUDescription,
	"skudescription":  ColSKUDescription,
	"skugrp":          ColSKUGroup,
	"sku_grp":         ColSKUGroup,
	"received_date":   ColReceivedDate,
	"receiveddate":    ColReceivedDate,
	"huid":            ColHUID,
	"owner_id":        ColOwnerID,
	"ownerid":         ColOwnerID,
	"stdcube":         ColStdCube,
}

// NormalizeHeader maps a header cell onto its canonical column name. Unknown
// headers are returned trimmed but otherwise unchanged.
func NormalizeHeader(header string) string {
	trimmed := strings.TrimSpace(strings.Trim(header, `"`))
	if canonical, ok := headerSynonyms[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}

// MissingColumns lists the required columns absent from the normalised headers,
// in declaration order.
func MissingColumns(headers []string) []string {
	present := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		present[strings.ToLower(h)] = struct{}{}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := present[strings.ToLower(col)]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}
