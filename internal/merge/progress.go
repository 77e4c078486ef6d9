package merge

// Progress receives one tick per processed source
type Progress interface {
	Start(total int)
	Incr()
	Stop()
}

type nopProgress struct{}

func (nopProgress) Start(int) {}
func (nopProgress) Incr()     {}
func (nopProgress) Stop()     {}
