package game

// Room is the authoritative document for one game session. It is persisted
// as a single JSON blob and mutated only through server commands.
type Room struct {
	ID             string      `json:"id"`
	Status         Status      `json:"status"`
	HostID         string      `json:"hostId"`
	CreatorID      string      `json:"creatorId"`
	StatusVersion  int64       `json:"statusVersion"`
	ResetRequestID string      `json:"resetRequestId,omitempty"`
	StartRequestID string      `json:"startRequestId,omitempty"`
	Options        RoomOptions `json:"options"`
	Topic          string      `json:"topic,omitempty"`
	TopicBox       string      `json:"topicBox,omitempty"`
	TopicOptions   []string    `json:"topicOptions,omitempty"`
	Order          OrderState  `json:"order"`
	Result         *RoomResult `json:"result,omitempty"`
	Round          int         `json:"round"`
	Stats          RoomStats   `json:"stats"`
	Deal           *DealState  `json:"deal,omitempty"`
	UI             UIState     `json:"ui"`
	LastActiveAt   int64       `json:"lastActiveAt"`
	LastCommandAt  int64       `json:"lastCommandAt"`
}

type UIState struct {
	RecallOpen bool `json:"recallOpen"`
}

type ResolveMode string

const (
	ResolveSequential ResolveMode = "sequential"
	ResolveSortSubmit ResolveMode = "sort-submit"
)

type RoomOptions struct {
	ResolveMode   ResolveMode `json:"resolveMode"`
	TopicType     string      `json:"topicType,omitempty"`
	Password      string      `json:"password,omitempty"`
	DisplayMode   string      `json:"displayMode,omitempty"`
	AllowContinue bool        `json:"allowContinue,omitempty"`
}

// OrderState is the in-progress round. List holds the committed play order,
// Proposal the not-yet-committed slot arrangement ("" marks an empty slot).
// FailedAt is -1 while no violation has occurred.
type OrderState struct {
	List       []string `json:"list"`
	Proposal   []string `json:"proposal"`
	Total      int      `json:"total"`
	Failed     bool     `json:"failed"`
	FailedAt   int      `json:"failedAt"`
	LastNumber int      `json:"lastNumber"`
}

func NewOrderState(total int) OrderState {
	return OrderState{Total: total, FailedAt: -1}
}

type RoomResult struct {
	Success    bool           `json:"success"`
	List       []string       `json:"list"`
	Numbers    map[string]int `json:"numbers"`
	FailedAt   int            `json:"failedAt"`
	RevealedAt int64          `json:"revealedAt"`
}

type DealState struct {
	Seed        string         `json:"seed"`
	Min         int            `json:"min"`
	Max         int            `json:"max"`
	Numbers     map[string]int `json:"numbers"`
	SeatHistory [][]string     `json:"seatHistory,omitempty"`
}

// Player is the per-uid sub-document. Number stays nil until a deal.
type Player struct {
	UID        string `json:"uid"`
	Name       string `json:"name"`
	Number     *int   `json:"number"`
	Clue1      string `json:"clue1"`
	Clue2      string `json:"clue2"`
	Ready      bool   `json:"ready"`
	OrderIndex int    `json:"orderIndex"`
	Avatar     string `json:"avatar,omitempty"`
	JoinedAt   int64  `json:"joinedAt"`
	LastSeenAt int64  `json:"lastSeenAt"`
}
