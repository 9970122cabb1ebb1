package httpserver

import "html/template"

type indexData struct {
	Today string
}

var panelTmpl = template.Must(template.New("panel").Parse(`<h3>{{.Name}}</h3>
<p><strong>Altitude:</strong> {{.Altitude}} m</p>
<p><strong>Capacity:</strong> {{.Capacity}} places</p>
<p><strong>Gardien(s):</strong> {{.Gardien}}</p>
<p><strong>Available on {{.Date}}:</strong> {{.Available}}</p>
{{if .Description}}<p>{{.Description}}</p>
{{end}}{{range $i, $u := .URLs}}{{if $i}}<br>{{end}}<a href="{{$u}}" target="_blank" rel="noopener noreferrer">{{$u}}</a>{{end}}
`))

// The page only wires the widgets; every row, marker state and popup comes
// from /v1/view so the table and the map are computed together.
var indexTmpl = template.Must(template.New("index").Parse(`<!doctype html>
<html lang="fr">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Refuges</title>
    <link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css" />
    <link rel="stylesheet" href="https://unpkg.com/tabulator-tables@6.3.0/dist/css/tabulator.min.css" />
    <style>
      html, body { height: 100%; margin: 0; font-family: system-ui, sans-serif; }
      #layout { display: flex; height: 100%; }
      #map { flex: 1; }
      #sidebar { width: 480px; overflow: auto; padding: 12px; box-sizing: border-box; }
      #sidebar.minimized { width: 40px; }
      #sidebar.minimized > :not(#toggle-sidebar) { display: none; }
      .available { color: #15803d; font-weight: 600; }
      .unavailable { color: #b91c1c; }
      .unknown { color: #6b7280; }
    </style>
  </head>
  <body>
    <div id="layout">
      <div id="map"></div>
      <div id="sidebar">
        <button id="toggle-sidebar" type="button">&#9776;</button>
        <label>Date <input id="date-picker" type="date" /></label>
        <div id="info-panel"><h3>Refuges</h3><p>Click a refuge on the map or in the table.</p></div>
        <div id="refuge-table"></div>
      </div>
    </div>
    <script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
    <script src="https://unpkg.com/tabulator-tables@6.3.0/dist/js/tabulator.min.js"></script>
    <script>
      const state = { date: {{.Today}}, focus: "" };
      const infoPanel = document.getElementById("info-panel");
      const welcomeHtml = infoPanel.innerHTML;
      const dateInput = document.getElementById("date-picker");

      const topo = L.tileLayer("https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png", {
        attribution: "&copy; OpenTopoMap contributors, &copy; OpenStreetMap contributors",
        maxZoom: 17
      });
      const osm = L.tileLayer("https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png", {
        attribution: "&copy; OpenStreetMap contributors"
      });
      const map = L.map("map", { center: [45.5, 6.5], zoom: 8, layers: [topo] });
      L.control.layers({ OpenStreetMap: osm, Topographic: topo }).addTo(map);

      const iconOpts = { iconSize: [25, 41], iconAnchor: [12, 41], popupAnchor: [1, -34],
        shadowUrl: "https://unpkg.com/leaflet@1.9.4/dist/images/marker-shadow.png" };
      const icons = {
        available: L.icon(Object.assign({ iconUrl: "https://unpkg.com/leaflet@1.9.4/dist/images/marker-icon.png" }, iconOpts)),
        unavailable: L.icon(Object.assign({ iconUrl: "https://raw.githubusercontent.com/pointhi/leaflet-color-markers/master/img/marker-icon-red.png" }, iconOpts))
      };
      const markers = {};

      function bbox() {
        const b = map.getBounds();
        return [b.getWest(), b.getSouth(), b.getEast(), b.getNorth()].map(function (v) { return v.toFixed(5); }).join(",");
      }

      function syncMarkers(list) {
        const seen = {};
        list.forEach(function (m) {
          seen[m.key] = true;
          let mk = markers[m.key];
          if (!mk) {
            mk = L.marker([m.lat, m.lng]).addTo(map).bindPopup("");
            mk.on("click", function () { select(m.key); });
            markers[m.key] = mk;
          }
          mk.setLatLng([m.lat, m.lng]);
          mk.setIcon(icons[m.state]);
          mk.setPopupContent(m.popup);
        });
        // refuges gone from the latest snapshot
        Object.keys(markers).forEach(function (k) {
          if (!seen[k]) {
            map.removeLayer(markers[k]);
            delete markers[k];
          }
        });
      }

      function loadPanel(key) {
        const url = "/v1/refuges/" + encodeURIComponent(key) + "/panel?date=" + encodeURIComponent(state.date);
        fetch(url).then(function (r) { return r.ok ? r.text() : ""; }).then(function (html) {
          if (html) { infoPanel.innerHTML = html; }
        });
      }

      function select(key) {
        state.focus = key;
        loadPanel(key);
        table.setData();
      }

      function reset() {
        state.focus = "";
        infoPanel.innerHTML = welcomeHtml;
        table.setData();
      }

      const table = new Tabulator("#refuge-table", {
        layout: "fitColumns",
        pagination: true,
        paginationMode: "remote",
        paginationSize: 10,
        sortMode: "remote",
        filterMode: "remote",
        ajaxURL: "/v1/view",
        ajaxURLGenerator: function (url, config, params) {
          const q = new URLSearchParams({ date: state.date, bbox: bbox(), page: params.page, size: params.size });
          if (state.focus) { q.set("focus", state.focus); }
          if (params.sort && params.sort.length) {
            q.set("sort", (params.sort[0].dir === "desc" ? "-" : "") + params.sort[0].field);
          }
          (params.filter || []).forEach(function (f) {
            if (f.field === "name" && f.value) { q.set("q", f.value); }
          });
          return url + "?" + q.toString();
        },
        ajaxResponse: function (url, params, resp) {
          syncMarkers(resp.markers);
          return { last_page: Math.max(1, Math.ceil(resp.rows.total / resp.rows.size)), data: resp.rows.items };
        },
        columns: [
          { title: "Refuge", field: "name", headerFilter: "input", widthGrow: 2 },
          { title: "Altitude", field: "altitude_m", hozAlign: "center", width: 90 },
          { title: "Places", field: "places", hozAlign: "center", width: 80 },
          { title: "Available", field: "available_places", hozAlign: "center", width: 110,
            formatter: function (cell) {
              const c = cell.getRow().getData().available;
              const span = document.createElement("span");
              span.className = c.class;
              span.textContent = c.text;
              return span;
            } }
        ]
      });

      table.on("rowClick", function (e, row) {
        const d = row.getData();
        select(d.key);
        if (markers[d.key]) { markers[d.key].openPopup(); }
      });

      map.on("moveend", function () { table.setData(); });
      map.on("click", reset);
      map.on("popupclose", reset);

      dateInput.value = state.date;
      dateInput.addEventListener("change", function (e) {
        state.date = e.target.value;
        table.setData();
        if (state.focus) { loadPanel(state.focus); }
      });

      document.getElementById("toggle-sidebar").addEventListener("click", function () {
        document.getElementById("sidebar").classList.toggle("minimized");
      });
    </script>
  </body>
</html>
`))
