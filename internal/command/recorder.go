package command

// Host is the complete set of functions a guest can call. Nothing else is
// reachable from guest code.
type Host interface {
	Print(text string) error
	FillStyle(color string) error
	FillRect(x, y, width, height float32) error
	BeginPath() error
	Arc(x, y, radius, sweepAngle, xRotation float32) error
	ClosePath() error
	Fill() error
	MoveTo(x, y float32) error
	CubicBezierTo(x1, y1, x2, y2, x3, y3 float32) error
	Label(text string, x, y, size float32, color string) error
}

// PrintFunc receives the guest's diagnostic output.
type PrintFunc func(text string)

// Recorder implements Host by appending every drawing call to a queue instead
// of acting on it. One Recorder exists per sandbox instance.
type Recorder struct {
	queue Queue
	print PrintFunc
}

var _ Host = (*Recorder)(nil)

// NewRecorder creates a recorder with an empty queue. print may be nil.
func NewRecorder(print PrintFunc) *Recorder {
	return &Recorder{print: print}
}

// Drain returns the recorded events in call order and empties the queue.
func (r *Recorder) Drain() []Event {
	return r.queue.Drain()
}

// Pending returns the number of recorded, undrained events.
func (r *Recorder) Pending() int {
	return r.queue.Len()
}

// Print is diagnostic only and records nothing.
func (r *Recorder) Print(text string) error {
	if r.print != nil {
		r.print(text)
	}
	return nil
}

func (r *Recorder) FillStyle(color string) error {
	r.queue.Push(FillStyle{Color: color})
	return nil
}

func (r *Recorder) FillRect(x, y, width, height float32) error {
	r.queue.Push(FillRect{X: x, Y: y, Width: width, Height: height})
	return nil
}

func (r *Recorder) BeginPath() error {
	r.queue.Push(BeginPath{})
	return nil
}

func (r *Recorder) Arc(x, y, radius, sweepAngle, xRotation float32) error {
	r.queue.Push(Arc{X: x, Y: y, Radius: radius, SweepAngle: sweepAngle, XRotation: xRotation})
	return nil
}

func (r *Recorder) ClosePath() error {
	r.queue.Push(ClosePath{})
	return nil
}

func (r *Recorder) Fill() error {
	r.queue.Push(Fill{})
	return nil
}

func (r *Recorder) MoveTo(x, y float32) error {
	r.queue.Push(MoveTo{X: x, Y: y})
	return nil
}

func (r *Recorder) CubicBezierTo(x1, y1, x2, y2, x3, y3 float32) error {
	r.queue.Push(CubicBezierTo{X1: x1, Y1: y1, X2: x2, Y2: y2, X3: x3, Y3: y3})
	return nil
}

func (r *Recorder) Label(text string, x, y, size float32, color string) error {
	r.queue.Push(Label{Text: text, X: x, Y: y, Size: size, Color: color})
	return nil
}
