// Package config provides configuration types and loading for the shaping proxy.
//
// A configuration names one upstream and a list of routes. Each route matches
// requests by path prefix, method and an optional CEL condition, and declares
// the shape applied to request and response bodies:
//
//	upstream:
//	  url: http://sessions.internal:8080
//	dates:
//	  location: Europe/Berlin
//	routes:
//	  - name: sessions
//	    match:
//	      pathPrefix: /api/sessions
//	      methods: [GET, PUT]
//	    request:
//	      dates:
//	        - to: localIso
//	          paths: [start, end]
//	      ids: [owner]
//	    response:
//	      dates:
//	        - to: zonedIso
//	          paths: [start, end, status.closedAt]
//
// Values may reference the environment as ${VAR} or ${VAR:-default}; "$$"
// yields a literal dollar sign. Watcher reloads the file on change and keeps
// the previous configuration when the new one fails validation.
package config
