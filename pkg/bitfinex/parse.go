package bitfinex

import (
	"errors"
	"fmt"

	"github.com/valyala/fastjson"
)

// ErrUnknownFrame marks a syntactically valid frame of a shape this client
// does not understand. Callers drop such frames; one odd message must never
// stall the stream.
var ErrUnknownFrame = errors.New("bitfinex: unrecognized frame")

var parsers fastjson.ParserPool

// Parse classifies a raw inbound frame into its tagged variant. All shape
// sniffing lives here: control events are JSON objects with an "event"
// field, everything else is a `[chanId, payload]` array whose payload shape
// selects heartbeat, ticker, book snapshot or book update.
func Parse(raw []byte) (Frame, error) {
	p := parsers.Get()
	defer parsers.Put(p)

	v, err := p.ParseBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("bitfinex: malformed frame: %w", err)
	}

	switch v.Type() {
	case fastjson.TypeObject:
		return parseEvent(v)
	case fastjson.TypeArray:
		return parseChannelFrame(v)
	default:
		return nil, ErrUnknownFrame
	}
}

func parseEvent(v *fastjson.Value) (Frame, error) {
	switch string(v.GetStringBytes("event")) {
	case EventInfo:
		ev := &InfoEvent{
			Version: v.GetInt("version"),
			Code:    v.GetInt("code"),
		}
		if platform := v.Get("platform"); platform != nil {
			ev.Platform = platform.GetInt("status")
			ev.HasPlatform = true
		}
		return ev, nil

	case EventSubscribed:
		return &SubscribedEvent{
			ChanID:  v.GetInt("chanId"),
			Channel: string(v.GetStringBytes("channel")),
			Symbol:  string(v.GetStringBytes("symbol")),
		}, nil

	case EventUnsubscribed:
		return &UnsubscribedEvent{
			ChanID: v.GetInt("chanId"),
			Status: string(v.GetStringBytes("status")),
		}, nil

	case EventError:
		return &ErrorEvent{
			Code: v.GetInt("code"),
			Msg:  string(v.GetStringBytes("msg")),
		}, nil

	case EventPong:
		return &PongEvent{
			CID: v.GetInt64("cid"),
			TS:  v.GetInt64("ts"),
		}, nil
	}
	return nil, ErrUnknownFrame
}

func parseChannelFrame(v *fastjson.Value) (Frame, error) {
	arr := v.GetArray()
	if len(arr) < 2 {
		return nil, ErrUnknownFrame
	}
	chanID, err := arr[0].Int()
	if err != nil {
		return nil, ErrUnknownFrame
	}

	payload := arr[1]
	switch payload.Type() {
	case fastjson.TypeString:
		if marker, _ := payload.StringBytes(); string(marker) == heartbeatMarker {
			return &Heartbeat{ChanID: chanID}, nil
		}
		return nil, ErrUnknownFrame

	case fastjson.TypeArray:
		inner := payload.GetArray()
		if len(inner) == 0 {
			return nil, ErrUnknownFrame
		}
		if inner[0].Type() == fastjson.TypeArray {
			return parseBookSnapshot(chanID, inner)
		}
		switch len(inner) {
		case 10:
			return parseTicker(chanID, inner)
		case 3:
			lvl, err := parseLevel(inner)
			if err != nil {
				return nil, err
			}
			return &BookUpdate{ChanID: chanID, Level: lvl}, nil
		}
	}
	return nil, ErrUnknownFrame
}

func parseBookSnapshot(chanID int, rows []*fastjson.Value) (Frame, error) {
	snapshot := &BookSnapshot{
		ChanID: chanID,
		Levels: make([]Level, 0, len(rows)),
	}
	for _, row := range rows {
		lvl, err := parseLevel(row.GetArray())
		if err != nil {
			return nil, err
		}
		snapshot.Levels = append(snapshot.Levels, lvl)
	}
	return snapshot, nil
}

func parseLevel(triple []*fastjson.Value) (Level, error) {
	if len(triple) != 3 {
		return Level{}, fmt.Errorf("bitfinex: book level has %d fields, want 3", len(triple))
	}
	price, err := triple[0].Float64()
	if err != nil {
		return Level{}, fmt.Errorf("bitfinex: book level price: %w", err)
	}
	count, err := triple[1].Int()
	if err != nil {
		return Level{}, fmt.Errorf("bitfinex: book level count: %w", err)
	}
	amount, err := triple[2].Float64()
	if err != nil {
		return Level{}, fmt.Errorf("bitfinex: book level amount: %w", err)
	}
	return Level{Price: price, Count: count, Amount: amount}, nil
}

func parseTicker(chanID int, fields []*fastjson.Value) (Frame, error) {
	var vals [10]float64
	for i, field := range fields {
		x, err := field.Float64()
		if err != nil {
			return nil, fmt.Errorf("bitfinex: ticker field %d: %w", i, err)
		}
		vals[i] = x
	}
	return &TickerUpdate{
		ChanID: chanID,
		Ticker: TickerFields{
			Bid:             vals[0],
			BidSize:         vals[1],
			Ask:             vals[2],
			AskSize:         vals[3],
			DailyChange:     vals[4],
			DailyChangePerc: vals[5],
			LastPrice:       vals[6],
			Volume:          vals[7],
			High:            vals[8],
			Low:             vals[9],
		},
	}, nil
}
