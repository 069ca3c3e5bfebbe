package connection

// Message is one complete message assembled by the receive loop.
// Exactly one of Text and Binary is set, according to Type.
type Message struct {
	Type   MessageType
	Text   string
	Binary []byte
}

// CloseEvent describes how a connection closed.
type CloseEvent struct {
	Status   CloseStatus
	Reason   string
	ByRemote bool
}

// Handler receives connection notifications. OnOpened, OnMessage, OnClosed
// and OnError run on the connection's dispatch goroutine in the order the
// events occurred. OnClosing runs on the goroutine that called Close.
type Handler interface {
	OnOpened(c *Connection)
	OnMessage(c *Connection, m Message)
	OnClosed(c *Connection, e CloseEvent)
	OnError(c *Connection, err error)
	OnClosing(c *Connection, e CloseEvent)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are ignored.
type HandlerFuncs struct {
	Opened  func(c *Connection)
	Message func(c *Connection, m Message)
	Closed  func(c *Connection, e CloseEvent)
	Error   func(c *Connection, err error)
	Closing func(c *Connection, e CloseEvent)
}

func (h HandlerFuncs) OnOpened(c *Connection) {
	if h.Opened != nil {
		h.Opened(c)
	}
}

func (h HandlerFuncs) OnMessage(c *Connection, m Message) {
	if h.Message != nil {
		h.Message(c, m)
	}
}

func (h HandlerFuncs) OnClosed(c *Connection, e CloseEvent) {
	if h.Closed != nil {
		h.Closed(c, e)
	}
}

func (h HandlerFuncs) OnError(c *Connection, err error) {
	if h.Error != nil {
		h.Error(c, err)
	}
}

func (h HandlerFuncs) OnClosing(c *Connection, e CloseEvent) {
	if h.Closing != nil {
		h.Closing(c, e)
	}
}

type eventKind uint8

const (
	eventOpened eventKind = iota
	eventMessage
	eventClosed
	eventError
)

// event is one item of the dispatch queue.
type event struct {
	kind  eventKind
	msg   Message
	close CloseEvent
	err   error
}
