package order

// Checkpoint is one step of the four-step order tracker.
type Checkpoint struct {
	Status string `json:"status"`
	Label  string `json:"label"`
}

var Checkpoints = []Checkpoint{
	{Status: "pending", Label: "Order Placed"},
	{Status: "processing", Label: "Processing"},
	{Status: "shipped", Label: "Shipped"},
	{Status: "delivered", Label: "Delivered"},
}

var progressByStatus = map[string]int{
	"pending":    10,
	"processing": 35,
	"shipped":    70,
	"delivered":  100,
	"completed":  100,
}

// Progress returns the tracker percentage for a raw status string. Unknown
// values yield 0.
func Progress(status string) int {
	return progressByStatus[status]
}

// CheckpointIndex returns the index into Checkpoints reached by status, or -1.
func CheckpointIndex(status string) int {
	if status == string(StatusCompleted) {
		return len(Checkpoints) - 1
	}
	for i, cp := range Checkpoints {
		if cp.Status == status {
			return i
		}
	}
	return -1
}

type CheckpointState struct {
	Checkpoint
	Reached bool `json:"reached"`
}

// Tracking is the read-only projection rendered by the order history page.
type Tracking struct {
	Status          string            `json:"status"`
	Progress        int               `json:"progress"`
	CheckpointIndex int               `json:"checkpoint_index"`
	Checkpoints     []CheckpointState `json:"checkpoints"`
	ShippingMethod  string            `json:"shipping_method,omitempty"`
	TrackingNumber  string            `json:"tracking_number,omitempty"`
	Reviewable      bool              `json:"reviewable"`
}

// Track renders the stored status, so legacy values such as "pending" or
// "delivered" keep their place on the tracker.
func Track(o *Order) Tracking {
	status := o.StoredStatus()
	idx := CheckpointIndex(status)

	states := make([]CheckpointState, len(Checkpoints))
	for i, cp := range Checkpoints {
		states[i] = CheckpointState{Checkpoint: cp, Reached: idx >= 0 && i <= idx}
	}

	t := Tracking{
		Status:          status,
		Progress:        Progress(status),
		CheckpointIndex: idx,
		Checkpoints:     states,
		ShippingMethod:  o.ShippingMethod,
		Reviewable:      Progress(status) == 100,
	}

	if status == string(StatusShipped) && o.TrackingNumber != nil && *o.TrackingNumber != "" {
		t.TrackingNumber = *o.TrackingNumber
	}

	return t
}
