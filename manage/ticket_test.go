package manage

import (
	"context"
	"testing"
	"time"

	"github.com/localfirst/syncd/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRequestTicket(t *testing.T) {
	m, clk, _ := newTestManager(t)
	ti := NewTicketIssuer(m)
	ctx := context.Background()

	Convey("Requesting a ticket", t, func() {
		pair, err := m.IssueNewPair(ctx, alice)
		So(err, ShouldBeNil)

		Convey("with a valid access token binds it to the session", func() {
			tk, err := ti.RequestTicket(ctx, pair.AccessToken)
			So(err, ShouldBeNil)
			So(len(tk.Ticket), ShouldEqual, 2*ticketBytes)
			So(tk.ExpiresAt, ShouldEqual, clk.Now().Add(testCfg.TicketTTL))

			rec, err := ti.Redeem(ctx, tk.Ticket)
			So(err, ShouldBeNil)
			So(rec.UserID, ShouldEqual, alice.UserID)
			So(rec.SessionID, ShouldEqual, pair.SessionID)
			So(rec.ConnectionExpiry.Unix(), ShouldEqual, pair.AccessExpiresAt.Unix())
		})

		Convey("twice yields independent tickets", func() {
			a, err := ti.RequestTicket(ctx, pair.AccessToken)
			So(err, ShouldBeNil)
			b, err := ti.RequestTicket(ctx, pair.AccessToken)
			So(err, ShouldBeNil)
			So(a.Ticket, ShouldNotEqual, b.Ticket)
			_, err = ti.Redeem(ctx, a.Ticket)
			So(err, ShouldBeNil)
			_, err = ti.Redeem(ctx, b.Ticket)
			So(err, ShouldBeNil)
		})

		Convey("with a refresh token is unauthorized", func() {
			_, err := ti.RequestTicket(ctx, pair.RefreshToken)
			So(errors.KindOf(err), ShouldEqual, errors.KindAccessUnauthorized)
		})

		Convey("after revocation is unauthorized", func() {
			So(m.RevokeGroup(ctx, pair.SessionID, pair.RefreshExpiresAt), ShouldBeNil)
			_, err := ti.RequestTicket(ctx, pair.AccessToken)
			So(errors.KindOf(err), ShouldEqual, errors.KindAccessUnauthorized)
		})
	})
}

func TestRedeemTicket(t *testing.T) {
	m, clk, st := newTestManager(t)
	ti := NewTicketIssuer(m)
	ctx := context.Background()

	Convey("Redeeming a ticket", t, func() {
		pair, err := m.IssueNewPair(ctx, alice)
		So(err, ShouldBeNil)
		tk, err := ti.RequestTicket(ctx, pair.AccessToken)
		So(err, ShouldBeNil)

		Convey("is single use", func() {
			_, err := ti.Redeem(ctx, tk.Ticket)
			So(err, ShouldBeNil)
			_, err = ti.Redeem(ctx, tk.Ticket)
			So(errors.IdentifierOf(err), ShouldEqual, errors.IdentifierTicketInvalid)
			So(errors.KindOf(err), ShouldEqual, errors.KindAccessUnauthorized)
		})

		Convey("after its window is refused as expired", func() {
			clk.Advance(testCfg.TicketTTL + time.Second)
			_, err := ti.Redeem(ctx, tk.Ticket)
			So(errors.IdentifierOf(err), ShouldEqual, errors.IdentifierTicketExpired)
			So(errors.KindOf(err), ShouldEqual, errors.KindRequestInvalid)
		})

		Convey("with an unknown value is invalid", func() {
			_, err := ti.Redeem(ctx, "deadbeef")
			So(errors.IdentifierOf(err), ShouldEqual, errors.IdentifierTicketInvalid)
			_, err = ti.Redeem(ctx, "")
			So(errors.IdentifierOf(err), ShouldEqual, errors.IdentifierTicketInvalid)
		})

		Convey("with a corrupt record is malformed", func() {
			So(st.Set(ctx, ticketKey("corrupt"), "{not json", time.Minute), ShouldBeNil)
			_, err := ti.Redeem(ctx, "corrupt")
			So(errors.IdentifierOf(err), ShouldEqual, errors.IdentifierTicketMalformed)
		})
	})
}
