//go:build !linux && !darwin

package socket

import "time"

type Conn struct{}

func Dial(Addr) (*Conn, bool, error) { return nil, false, ErrUnsupported }

func (c *Conn) Addr() Addr                   { return Addr{} }
func (c *Conn) Write([]byte) (int, error)    { return 0, ErrUnsupported }
func (c *Conn) Read([]byte) (int, error)     { return 0, ErrUnsupported }
func (c *Conn) Err() error                   { return ErrUnsupported }
func (c *Conn) WaitWritable(time.Time) error { return ErrUnsupported }
func (c *Conn) WaitReadable(time.Time) error { return ErrUnsupported }
func (c *Conn) Close() error                 { return ErrClosed }

func isWouldBlock(error) bool { return false }
