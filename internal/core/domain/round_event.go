package domain

type RoundEvent interface {
	IsEvent()
}

func (r RoundStarted) IsEvent()      {}
func (r EntrantRegistered) IsEvent() {}
func (r DrawStarted) IsEvent()       {}
func (r RoundFinalized) IsEvent()    {}
func (r RoundFailed) IsEvent()       {}

type RoundStarted struct {
	Id          string
	TicketPrice uint64
	Timestamp   int64
}

type EntrantRegistered struct {
	Id      string
	Entrant Entrant
}

type DrawStarted struct {
	Id        string
	RequestId string
	Timestamp int64
}

type RoundFinalized struct {
	Id         string
	RequestId  string
	RandomWord uint64
	Winner     string
	Payout     uint64
	Timestamp  int64
}

type RoundFailed struct {
	Id        string
	Err       string
	Timestamp int64
}
