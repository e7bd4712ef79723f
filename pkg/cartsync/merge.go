package cartsync

// Item is one cart or wishlist entry. Quantity is zero for wishlist entries.
type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity,omitempty"`
}

// MergeCart seeds from server and overlays local. A product present on both
// sides keeps the larger quantity; quantities are never summed.
// Server order comes first, then local-only products in local order.
func MergeCart(server, local []Item) []Item {
	merged := make([]Item, 0, len(server)+len(local))
	index := make(map[string]int, len(server)+len(local))
	for _, it := range server {
		if it.ProductID == "" || it.Quantity <= 0 {
			continue
		}
		if i, ok := index[it.ProductID]; ok {
			merged[i].Quantity = max(merged[i].Quantity, it.Quantity)
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	for _, it := range local {
		if it.ProductID == "" || it.Quantity <= 0 {
			continue
		}
		if i, ok := index[it.ProductID]; ok {
			merged[i].Quantity = max(merged[i].Quantity, it.Quantity)
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	return merged
}

// MergeWishlist is the union of both lists. When both sides hold a product
// the server entry is kept and the local one dropped.
func MergeWishlist(server, local []Item) []Item {
	merged := make([]Item, 0, len(server)+len(local))
	seen := make(map[string]struct{}, len(server)+len(local))
	for _, list := range [][]Item{server, local} {
		for _, it := range list {
			if it.ProductID == "" {
				continue
			}
			if _, ok := seen[it.ProductID]; ok {
				continue
			}
			seen[it.ProductID] = struct{}{}
			merged = append(merged, Item{ProductID: it.ProductID})
		}
	}
	return merged
}

func sameItems(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
