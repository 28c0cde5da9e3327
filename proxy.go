package main

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"
)

var (
	proxyMutex sync.RWMutex
	proxyCache = make(map[string]proxy.Dialer)
)

// HTTPProxyDialer implements proxy.Dialer for HTTP CONNECT proxies
type HTTPProxyDialer struct {
	proxyURL *url.URL
	timeout  time.Duration
}

// Dial connects to the address through the HTTP proxy
func (d *HTTPProxyDialer) Dial(network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:   d.timeout,
		KeepAlive: 30 * time.Second,
	}

	conn, err := dialer.Dial("tcp", d.proxyURL.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to HTTP proxy: %v", err)
	}

	connectReq := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", addr, addr)
	if d.proxyURL.User != nil {
		username := d.proxyURL.User.Username()
		password, _ := d.proxyURL.User.Password()
		auth := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		connectReq += "Proxy-Authorization: Basic " + auth + "\r\n"
	}
	connectReq += "\r\n"

	if _, err := conn.Write([]byte(connectReq)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to write CONNECT request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(d.timeout))
	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read CONNECT response: %v", err)
	}
	resp.Body.Close()
	conn.SetReadDeadline(time.Time{})

	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("proxy connection failed: %s", resp.Status)
	}
	return conn, nil
}

// GetProxyForAccount returns a proxy dialer for the given account, or
// nil when PROXY_URL is not configured. The URL may contain a
// "[session]" placeholder that is replaced per account for sticky
// sessions.
func GetProxyForAccount(username string, index int) (proxy.Dialer, error) {
	proxyMutex.RLock()
	if dialer, ok := proxyCache[username]; ok {
		proxyMutex.RUnlock()
		return dialer, nil
	}
	proxyMutex.RUnlock()

	proxyStr := os.Getenv("PROXY_URL")
	if proxyStr == "" {
		return nil, nil
	}

	session := fmt.Sprintf("%s%d", username, index)
	proxyStr = strings.ReplaceAll(proxyStr, "[session]", session)

	proxyURL, err := url.Parse(proxyStr)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %v", err)
	}

	var dialer proxy.Dialer
	switch proxyURL.Scheme {
	case "socks5":
		var auth *proxy.Auth
		if proxyURL.User != nil {
			auth = &proxy.Auth{User: proxyURL.User.Username()}
			if password, ok := proxyURL.User.Password(); ok {
				auth.Password = password
			}
		}
		dialer, err = proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %v", err)
		}
	case "http", "https":
		dialer = &HTTPProxyDialer{proxyURL: proxyURL, timeout: 30 * time.Second}
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", proxyURL.Scheme)
	}

	LogInfo("Using proxy %s for account %s", proxyURL.Host, username)

	proxyMutex.Lock()
	proxyCache[username] = dialer
	proxyMutex.Unlock()

	return dialer, nil
}
