// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package ajp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

var methods = [...]string{
	1:  http.MethodOptions,
	2:  http.MethodGet,
	3:  http.MethodHead,
	4:  http.MethodPost,
	5:  http.MethodPut,
	6:  http.MethodDelete,
	7:  http.MethodTrace,
	8:  "PROPFIND",
	9:  "PROPPATCH",
	10: "MKCOL",
	11: "COPY",
	12: "MOVE",
	13: "LOCK",
	14: "UNLOCK",
	15: "ACL",
	16: "REPORT",
	17: "VERSION-CONTROL",
	18: "CHECKIN",
	19: "CHECKOUT",
	20: "UNCHECKOUT",
	21: "SEARCH",
	22: "MKWORKSPACE",
	23: "UPDATE",
	24: "LABEL",
	25: "MERGE",
	26: "BASELINE-CONTROL",
	27: "MKACTIVITY",
}

const methodStored = 0xFF

var requestHeaders = [...]string{
	1:  "Accept",
	2:  "Accept-Charset",
	3:  "Accept-Encoding",
	4:  "Accept-Language",
	5:  "Authorization",
	6:  "Connection",
	7:  "Content-Type",
	8:  "Content-Length",
	9:  "Cookie",
	10: "Cookie2",
	11: "Host",
	12: "Pragma",
	13: "Referer",
	14: "User-Agent",
}

var responseHeaders = map[string]int{
	"Content-Type":     0x01,
	"Content-Language": 0x02,
	"Content-Length":   0x03,
	"Date":             0x04,
	"Last-Modified":    0x05,
	"Location":         0x06,
	"Set-Cookie":       0x07,
	"Set-Cookie2":      0x08,
	"Servlet-Engine":   0x09,
	"Status":           0x0A,
	"Www-Authenticate": 0x0B,
}

// Request attribute codes.
const (
	attrContext     byte = 0x01
	attrServletPath byte = 0x02
	attrRemoteUser  byte = 0x03
	attrAuthType    byte = 0x04
	attrQueryString byte = 0x05
	attrRoute       byte = 0x06
	attrSSLCert     byte = 0x07
	attrSSLCipher   byte = 0x08
	attrSSLSession  byte = 0x09
	attrReqAttr     byte = 0x0A
	attrSSLKeySize  byte = 0x0B
	attrSecret      byte = 0x0C
	attrStoredMeth  byte = 0x0D
	attrEnd         byte = 0xFF
)

// Attributes carries the request metadata the web server forwards
// alongside the HTTP request line and headers.
type Attributes struct {
	RemoteUser string
	AuthType   string
	Route      string
	SSLCert    string
	SSLCipher  string
	SSLSession string
	SSLKeySize int

	// Values holds the generic req_attribute pairs, e.g. AJP_REMOTE_PORT.
	Values map[string]string
}

type attributesCtxKey struct{}

// AttributesFromContext returns the forwarded attributes of the request
// being served, if it arrived over AJP.
func AttributesFromContext(ctx context.Context) (*Attributes, bool) {
	a, ok := ctx.Value(attributesCtxKey{}).(*Attributes)
	return a, ok
}

type forwardRequest struct {
	method      string
	protocol    string
	uri         string
	remoteAddr  string
	remoteHost  string
	serverName  string
	serverPort  int
	isSSL       bool
	headers     http.Header
	queryString string
	secret      string
	attrs       Attributes
}

func decodeForwardRequest(payload []byte) (*forwardRequest, error) {
	d := &decoder{buf: payload}
	code, err := d.readByte()
	if err != nil {
		return nil, err
	}
	if code != codeForwardRequest {
		return nil, fmt.Errorf("ajp: expected forward request, got prefix code %d", code)
	}

	fr := &forwardRequest{
		headers: make(http.Header),
		attrs:   Attributes{Values: make(map[string]string)},
	}

	mcode, err := d.readByte()
	if err != nil {
		return nil, err
	}
	if int(mcode) < len(methods) && methods[mcode] != "" {
		fr.method = methods[mcode]
	} else if mcode != methodStored {
		return nil, fmt.Errorf("ajp: unknown method code %d", mcode)
	}

	for _, s := range []*string{&fr.protocol, &fr.uri, &fr.remoteAddr, &fr.remoteHost, &fr.serverName} {
		*s, err = d.readString()
		if err != nil {
			return nil, err
		}
	}
	if fr.serverPort, err = d.readInt(); err != nil {
		return nil, err
	}
	if fr.isSSL, err = d.readBool(); err != nil {
		return nil, err
	}

	numHeaders, err := d.readInt()
	if err != nil {
		return nil, err
	}
	for range numHeaders {
		name, err := decodeHeaderName(d)
		if err != nil {
			return nil, err
		}
		value, err := d.readString()
		if err != nil {
			return nil, err
		}
		fr.headers.Add(name, value)
	}

	if err := fr.decodeAttributes(d); err != nil {
		return nil, err
	}
	return fr, nil
}

func decodeHeaderName(d *decoder) (string, error) {
	n, err := d.readInt()
	if err != nil {
		return "", err
	}
	if n&0xFF00 != 0xA000 {
		return d.readStringBody(n)
	}
	idx := n & 0xFF
	if idx >= len(requestHeaders) || requestHeaders[idx] == "" {
		return "", fmt.Errorf("ajp: unknown request header code %#x", n)
	}
	return requestHeaders[idx], nil
}

func (fr *forwardRequest) decodeAttributes(d *decoder) error {
	for {
		code, err := d.readByte()
		if err == io.ErrUnexpectedEOF {
			// Some web servers omit the terminator on requests
			// without attributes.
			code, err = attrEnd, nil
		}
		if err != nil {
			return err
		}

		var s string
		switch code {
		case attrEnd:
			if fr.method == "" {
				return fmt.Errorf("ajp: stored method attribute missing")
			}
			return nil
		case attrReqAttr:
			name, err := d.readString()
			if err != nil {
				return err
			}
			value, err := d.readString()
			if err != nil {
				return err
			}
			fr.attrs.Values[name] = value
			continue
		case attrSSLKeySize:
			n, err := d.readInt()
			if err != nil {
				return err
			}
			fr.attrs.SSLKeySize = n
			continue
		}

		s, err = d.readString()
		if err != nil {
			return err
		}
		switch code {
		case attrContext, attrServletPath:
		case attrRemoteUser:
			fr.attrs.RemoteUser = s
		case attrAuthType:
			fr.attrs.AuthType = s
		case attrQueryString:
			fr.queryString = s
		case attrRoute:
			fr.attrs.Route = s
		case attrSSLCert:
			fr.attrs.SSLCert = s
		case attrSSLCipher:
			fr.attrs.SSLCipher = s
		case attrSSLSession:
			fr.attrs.SSLSession = s
		case attrSecret:
			fr.secret = s
		case attrStoredMeth:
			fr.method = s
		default:
			return fmt.Errorf("ajp: unknown attribute code %#x", code)
		}
	}
}

// contentLength returns the declared body length, or -1 for a chunked
// body of unknown length.
func (fr *forwardRequest) contentLength() (int64, error) {
	if cl := fr.headers.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("ajp: bad content length %q", cl)
		}
		return n, nil
	}
	if strings.EqualFold(fr.headers.Get("Transfer-Encoding"), "chunked") {
		return -1, nil
	}
	return 0, nil
}

func (fr *forwardRequest) httpRequest(ctx context.Context, body io.ReadCloser, contentLength int64) (*http.Request, error) {
	target := fr.uri
	if fr.queryString != "" {
		target += "?" + fr.queryString
	}
	u, err := url.ParseRequestURI(target)
	if err != nil {
		return nil, err
	}

	major, minor, ok := http.ParseHTTPVersion(fr.protocol)
	if !ok {
		major, minor = 1, 1
		fr.protocol = "HTTP/1.1"
	}

	host := fr.headers.Get("Host")
	if host == "" {
		host = net.JoinHostPort(fr.serverName, strconv.Itoa(fr.serverPort))
	}
	fr.headers.Del("Host")

	remotePort := fr.attrs.Values["AJP_REMOTE_PORT"]
	if remotePort == "" {
		remotePort = "0"
	}

	req := &http.Request{
		Method:        fr.method,
		URL:           u,
		Proto:         fr.protocol,
		ProtoMajor:    major,
		ProtoMinor:    minor,
		Header:        fr.headers,
		Body:          body,
		ContentLength: contentLength,
		Host:          host,
		RemoteAddr:    net.JoinHostPort(fr.remoteAddr, remotePort),
		RequestURI:    target,
	}
	if contentLength < 0 {
		req.TransferEncoding = []string{"chunked"}
	}
	if fr.isSSL {
		req.TLS = &tls.ConnectionState{HandshakeComplete: true, ServerName: fr.serverName}
	}

	attrs := fr.attrs
	return req.WithContext(context.WithValue(ctx, attributesCtxKey{}, &attrs)), nil
}

func encodeSendHeaders(status int, header http.Header, maxSize int) ([]byte, error) {
	e := newEncoder(responseMagic, maxSize)
	e.writeByte(codeSendHeaders)
	e.writeInt(status)
	msg := http.StatusText(status)
	if msg == "" {
		msg = strconv.Itoa(status)
	}
	e.writeString(msg)

	names := make([]string, 0, len(header))
	count := 0
	for name, values := range header {
		names = append(names, name)
		count += len(values)
	}
	sort.Strings(names)

	e.writeInt(count)
	for _, name := range names {
		canonical := http.CanonicalHeaderKey(name)
		for _, value := range header[name] {
			if code, ok := responseHeaders[canonical]; ok {
				e.writeInt(0xA000 | code)
			} else {
				e.writeString(name)
			}
			e.writeString(value)
		}
	}
	return e.packet(maxSize)
}

func encodeSendBodyChunk(p []byte, maxSize int) ([]byte, error) {
	e := newEncoder(responseMagic, len(p)+chunkOverhead)
	e.writeByte(codeSendBodyChunk)
	e.writeInt(len(p))
	e.writeBytes(p)
	e.writeByte(0)
	return e.packet(maxSize)
}

func encodeEndResponse(reuse bool) []byte {
	e := newEncoder(responseMagic, headerSize+2)
	e.writeByte(codeEndResponse)
	e.writeBool(reuse)
	b, _ := e.packet(MaxPacketSize)
	return b
}

func encodeGetBodyChunk(n int) []byte {
	e := newEncoder(responseMagic, headerSize+3)
	e.writeByte(codeGetBodyChunk)
	e.writeInt(n)
	b, _ := e.packet(MaxPacketSize)
	return b
}

func encodeCPong() []byte {
	e := newEncoder(responseMagic, headerSize+1)
	e.writeByte(codeCPongReply)
	b, _ := e.packet(MaxPacketSize)
	return b
}
