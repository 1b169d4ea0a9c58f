package runtime

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultPort is the Task Planner's default listen port (§6).
const DefaultPort uint16 = 50002

// listenWithFallback binds a TCP listener starting at port, incrementing
// on bind failure (wrapping past 0, skipping the literal value 0 itself
// since binding to it asks the OS for an arbitrary ephemeral port rather
// than failing) and giving up if the search returns to the starting
// port (§6, §3 supplement).
func listenWithFallback(port uint16) (net.Listener, uint16, error) {
	start := port
	p := port
	for {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", p))
		if err == nil {
			return ln, p, nil
		}
		p++
		if p == 0 {
			p = 1
		}
		if p == start {
			return nil, 0, ErrPortWrapped
		}
	}
}

// Listen binds the process's own accept socket, used both for the Task
// Planner's bootstrap accept loop and for a peer's post-bootstrap
// "connect-to" inbound connections. It must be called before
// AcceptConnection or MakeConnection.
func (rt *Runtime) Listen(port uint16) (uint16, error) {
	ln, actual, err := listenWithFallback(port)
	if err != nil {
		return 0, err
	}
	rt.listener = ln
	rt.acceptPort = actual
	return actual, nil
}

func readNULLine(r *bufio.Reader) (string, error) {
	s, err := r.ReadString(0)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(s, "\x00"), nil
}

func writeNULLine(w net.Conn, line string) error {
	_, err := w.Write(append([]byte(line), 0))
	return err
}

// AcceptConnection implements the Task Planner's role in bootstrap
// (§4.3): repeatedly accept, read each peer's "<acceptPort> <selfName>"
// handshake line, record its remote IP, and append it to the subsystem
// table, rejecting duplicates, until every id in expected is present.
// It then broadcasts the full roster (itself included) to every peer
// socket and freezes the table.
func (rt *Runtime) AcceptConnection(ctx context.Context, port uint16, expected []string) error {
	if rt.listener == nil {
		if _, err := rt.Listen(port); err != nil {
			return err
		}
	}
	if err := rt.table.add(rt.Name, "127.0.0.1", rt.acceptPort); err != nil {
		return err
	}

	remaining := make(map[string]struct{}, len(expected))
	for _, id := range expected {
		remaining[id] = struct{}{}
	}

	type pending struct {
		id   string
		conn net.Conn
	}
	var peers []pending

	for len(remaining) > 0 {
		conn, err := rt.listener.Accept()
		if err != nil {
			return err
		}
		reader := bufio.NewReader(conn)
		line, err := readNULLine(reader)
		if err != nil {
			conn.Close()
			continue
		}
		portStr, name, ok := strings.Cut(line, " ")
		if !ok {
			conn.Close()
			continue
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			conn.Close()
			continue
		}
		ip := remoteIP(conn)
		if err := rt.table.add(name, ip, uint16(port)); err != nil {
			conn.Close()
			continue
		}
		delete(remaining, name)
		peers = append(peers, pending{id: name, conn: conn})
	}

	for _, p := range peers {
		for _, e := range rt.table.entries {
			if err := writeNULLine(p.conn, fmt.Sprintf("%s:%d %s", e.IP, e.Port, e.ID)); err != nil {
				rt.log.Error("failed broadcasting roster", zap.String("to", p.id), zap.Error(err))
			}
		}
		if err := writeNULLine(p.conn, ""); err != nil {
			rt.log.Error("failed to terminate roster broadcast", zap.String("to", p.id), zap.Error(err))
		}
	}

	rt.table.freeze()
	for _, p := range peers {
		rt.adopt(p.id, p.conn)
	}
	rt.startAcceptLoop()
	return nil
}

func remoteIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

// connectWithRetry dials addr, retrying indefinitely on timeout until
// ctx is cancelled (§4.3: "retrying indefinitely on timeout").
func connectWithRetry(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	for {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		ne, ok := err.(net.Error)
		if !ok || !ne.Timeout() {
			return nil, err
		}
	}
}

// MakeConnection implements a peer's role in bootstrap (§4.3): connect
// to the Task Planner, send "<acceptPort> <selfName>", then read roster
// lines until the end-of-roster marker, populating the local table. The
// Task Planner's recorded IP is overwritten with tpIP (in case NAT
// rewrote the address the peer sees on its own socket).
func (rt *Runtime) MakeConnection(ctx context.Context, tpIP string, tpPort uint16, acceptPort uint16) error {
	if rt.listener == nil {
		if _, err := rt.Listen(acceptPort); err != nil {
			return err
		}
	}
	// Self is entry 0; the roster's own line for this peer is then a
	// tolerated duplicate.
	if err := rt.table.add(rt.Name, "127.0.0.1", rt.acceptPort); err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", tpIP, tpPort)
	conn, err := connectWithRetry(ctx, addr, 3*time.Second)
	if err != nil {
		return err
	}
	if err := writeNULLine(conn, fmt.Sprintf("%d %s", rt.acceptPort, rt.Name)); err != nil {
		conn.Close()
		return err
	}

	reader := bufio.NewReader(conn)
	for {
		line, err := readNULLine(reader)
		if err != nil {
			conn.Close()
			return err
		}
		if line == "" {
			break
		}
		addrPart, name, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		ip, portStr, ok := strings.Cut(addrPart, ":")
		if !ok {
			continue
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			continue
		}
		if name == TaskPlannerName {
			// The Task Planner recorded its own address as seen locally
			// (typically loopback); the dialled address is authoritative
			// in case NAT rewrote it in transit (§4.3).
			ip = tpIP
		}
		if err := rt.table.add(name, ip, uint16(port)); err != nil && err != ErrDuplicateSubsystem {
			conn.Close()
			return err
		}
	}

	rt.table.freeze()
	rt.adopt(TaskPlannerName, conn)
	rt.startAcceptLoop()
	return nil
}

// startAcceptLoop begins accepting post-bootstrap inbound connections
// (§4.4's Connect-to: "the remote main thread's accept loop can bind the
// socket to that worker"). Each new connection sends the connecting
// worker's own thread-ID as its first NUL-terminated bytes.
func (rt *Runtime) startAcceptLoop() {
	go func() {
		for {
			conn, err := rt.listener.Accept()
			if err != nil {
				return
			}
			reader := bufio.NewReader(conn)
			id, err := readNULLine(reader)
			if err != nil {
				conn.Close()
				continue
			}
			rt.conns.mu.Lock()
			_, exists := rt.conns.byID[id]
			rt.conns.mu.Unlock()
			if exists {
				conn.Close()
				continue
			}
			rt.adopt(id, conn)
		}
	}()
}
