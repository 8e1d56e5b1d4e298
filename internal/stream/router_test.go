package stream

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitfeed/internal/common"
	"bitfeed/internal/events/mocks"
	"bitfeed/internal/market"
)

func TestRouterPublishesBookEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	bus := mocks.NewMockBus(ctrl)
	bus.EXPECT().Publish(common.TypeStatus, gomock.Any()).AnyTimes()

	snapshots := make(chan interface{}, 1)
	bus.EXPECT().Publish(common.TypeBookSnapshot, gomock.Any()).
		Do(func(_ common.MessageType, ev interface{}) { snapshots <- ev }).
		Times(1)

	updates := make(chan interface{}, 1)
	bus.EXPECT().Publish(common.TypeBookUpdate, gomock.Any()).
		Do(func(_ common.MessageType, ev interface{}) { updates <- ev }).
		Times(1)

	d := &fakeDialer{}
	c := newTestClient(t, quietConfig(), d, WithBus(bus))
	require.NoError(t, c.SubscribeBook("tBTCUSD"))
	require.NoError(t, c.Connect(context.Background()))
	conn := d.conn(t, 0)

	conn.push(`{"event":"subscribed","channel":"book","chanId":5,"symbol":"tBTCUSD"}`)
	conn.push(`[5,[[50000,2,1.5],[50010,1,-0.4]]]`)

	select {
	case ev := <-snapshots:
		ob, ok := ev.(market.OrderBook)
		require.True(t, ok, "unexpected event type %T", ev)
		assert.Equal(t, "tBTCUSD", ob.Symbol)
		assert.Len(t, ob.Bids, 1)
		assert.Len(t, ob.Asks, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot event published")
	}

	conn.push(`[5,[49995,3,0.6]]`)
	select {
	case ev := <-updates:
		upd, ok := ev.(market.BookUpdate)
		require.True(t, ok, "unexpected event type %T", ev)
		assert.Equal(t, "tBTCUSD", upd.Symbol)
		assert.Equal(t, 49995.0, upd.Price)
		assert.Equal(t, 0.6, upd.Amount)
	case <-time.After(2 * time.Second):
		t.Fatal("no update event published")
	}

	// close before ctrl.Finish so late status publishes hit live expectations
	require.NoError(t, c.Close())
}
