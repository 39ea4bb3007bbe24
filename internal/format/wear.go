package format

// WearBucket categorizes a paint_wear float into the standard five-way
// market bucket.
func WearBucket(wear float32) string {
	switch {
	case wear < 0.07:
		return "Factory New"
	case wear < 0.15:
		return "Minimal Wear"
	case wear < 0.38:
		return "Field-Tested"
	case wear < 0.45:
		return "Well-Worn"
	default:
		return "Battle-Scarred"
	}
}
