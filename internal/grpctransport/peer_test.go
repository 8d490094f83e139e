package grpctransport

import (
	"net"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("formatPeer", func() {
	It("formats a TCP v4 peer", func() {
		v4 := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 5555}
		Expect(formatPeer(v4)).To(Equal("ipv4:10.0.0.1:5555"))
	})

	It("formats a TCP v6 peer", func() {
		v6 := &net.TCPAddr{IP: net.ParseIP("::1"), Port: 1234}
		Expect(formatPeer(v6)).To(Equal("ipv6:[::1]:1234"))
	})

	It("formats a unix-socket peer", func() {
		u := &net.UnixAddr{Name: "/tmp/rpcflow.sock", Net: "unix"}
		Expect(formatPeer(u)).To(Equal("unix:/tmp/rpcflow.sock"))
	})
})

var _ = Describe("UnescapePeer", func() {
	It("decodes bracket escapes in an ipv6 peer string", func() {
		Expect(UnescapePeer("ipv6:%5B::1%5D:1234")).To(Equal("ipv6:[::1]:1234"))
	})

	It("leaves unrelated percent-escapes untouched", func() {
		Expect(UnescapePeer("unix:/tmp/a%20b.sock")).To(Equal("unix:/tmp/a%20b.sock"))
	})
})

var _ = Describe("IsLocalPeer", func() {
	cases := map[string]bool{
		"ipv4:127.0.0.1:5555":          true,
		"ipv6:[::1]:5555":              true,
		"ipv6:[::ffff:127.0.0.1]:5555": true,
		"unix:/tmp/a.sock":             true,
		"ipv4:10.0.0.1:5555":           false,
		"ipv6:%5B::1%5D:5555":          true,
	}

	It("classifies loopback, unix and remote peers", func() {
		for peer, want := range cases {
			Expect(IsLocalPeer(peer)).To(Equal(want), "IsLocalPeer(%q)", peer)
		}
	})
})
